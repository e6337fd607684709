package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/bots"
	"github.com/twinsuns/draftroom/internal/draft/broadcast"
	"github.com/twinsuns/draftroom/internal/draft/enforcer"
	"github.com/twinsuns/draftroom/internal/draft/gateway"
	"github.com/twinsuns/draftroom/internal/draft/packs"
	"github.com/twinsuns/draftroom/internal/draft/service"
	"github.com/twinsuns/draftroom/internal/draft/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	catalogs, err := packs.LoadCatalogDir(cfg.SetsDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.SetsDir).Msg("load set catalogs")
	}
	log.Info().Int("sets", len(catalogs)).Str("dir", cfg.SetsDir).Msg("set catalogs loaded")

	clock := clockwork.NewRealClock()

	var st store.Store
	switch cfg.Store {
	case "memory":
		log.Warn().Msg("using in-memory store; drafts will not survive a restart")
		st = store.NewMemoryStore(clock)
	default:
		db, err := setupDatabase()
		if err != nil {
			log.Fatal().Err(err).Msg("connect to database")
		}
		defer db.Close()
		st = store.NewPostgresStore(db)
	}

	hub := broadcast.NewHub()
	if cfg.NATSURL != "" {
		bridgeCfg := broadcast.DefaultBridgeConfig()
		bridgeCfg.URL = cfg.NATSURL
		bridge, err := broadcast.NewBridge(hub, bridgeCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect broadcast bridge")
		}
		defer bridge.Close()
	}

	runner := bots.NewRunner(st, hub, bots.NewScoringBehavior, clock)
	svc := service.New(st, packs.NewSeededGenerator(catalogs), hub, runner, clock)
	enf := enforcer.New(st, hub, runner, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runner.Start(ctx)
	go enf.Run(ctx)

	api := gateway.New(svc, gateway.NewConnectionManager(hub, gateway.DefaultConnectionConfig()))
	srv := setupServer(cfg.Port, api.Router())

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("draftroom server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	hub.Shutdown()
}
