// Package service is the application facade over the draft core: it loads
// aggregates, applies engine transitions under the store's compare-and-set,
// broadcasts the result and wakes the bot runner. The HTTP and WebSocket
// layers call only this package.
package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/broadcast"
	"github.com/twinsuns/draftroom/internal/draft/engine"
	"github.com/twinsuns/draftroom/internal/draft/packs"
	"github.com/twinsuns/draftroom/internal/draft/store"
	"github.com/twinsuns/draftroom/internal/models"
)

// casRetries bounds how often a mutation is retried after losing the
// state-version race before giving up with STATE_CHANGED.
const casRetries = 3

// shareIDLength is the length of the join-link token.
const shareIDLength = 10

// Kicker wakes the bot runner for a draft.
type Kicker interface {
	Kick(draftID uuid.UUID)
}

// Service exposes every draft operation. One instance serves all drafts.
type Service struct {
	store     store.Store
	generator packs.Generator
	hub       *broadcast.Hub
	bots      Kicker
	clock     clockwork.Clock

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds the service. The internal rng feeds draft seeds and seat
// shuffles; everything downstream of a seed is reproducible.
func New(st store.Store, gen packs.Generator, hub *broadcast.Hub, bots Kicker, clock clockwork.Clock) *Service {
	return &Service{
		store:     st,
		generator: gen,
		hub:       hub,
		bots:      bots,
		clock:     clock,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SeatPrivate is the caller's own hidden state: the hand, the staged
// selection and the full drafted list.
type SeatPrivate struct {
	SeatID         uuid.UUID     `json:"seat_id"`
	SeatNumber     int           `json:"seat_number"`
	Hand           []models.Card `json:"hand"`
	SelectedCardID *string       `json:"selected_card_id,omitempty"`
	DraftedLeaders []models.Card `json:"drafted_leaders"`
	DraftedCards   []models.Card `json:"drafted_cards"`
}

// StateResponse is the public projection plus, when the caller holds a
// seat, that seat's private view.
type StateResponse struct {
	State *broadcast.PublicState `json:"state"`
	You   *SeatPrivate           `json:"you,omitempty"`
}

func (s *Service) respond(d *models.Draft, principal string) *StateResponse {
	resp := &StateResponse{State: broadcast.NewPublicState(d)}
	if seat := d.SeatByPrincipal(principal); seat != nil {
		resp.You = &SeatPrivate{
			SeatID:         seat.ID,
			SeatNumber:     seat.SeatNumber,
			Hand:           append([]models.Card(nil), seat.Hand(d.Status)...),
			SelectedCardID: seat.SelectedCardID,
			DraftedLeaders: append([]models.Card(nil), seat.DraftedLeaders...),
			DraftedCards:   append([]models.Card(nil), seat.DraftedCards...),
		}
	}
	return resp
}

// CreateOptions are the host's knobs at creation time. Zero values fall
// back to the defaults.
type CreateOptions struct {
	SetCode  string
	MaxSeats int
	Settings engine.SettingsPatch
}

// Create opens a new waiting draft with the caller seated as host.
func (s *Service) Create(ctx context.Context, principal string, opts CreateOptions) (*StateResponse, error) {
	maxSeats := opts.MaxSeats
	if maxSeats == 0 {
		maxSeats = engine.MaxSeats
	}
	if maxSeats < engine.MinSeats || maxSeats > engine.MaxSeats {
		return nil, engine.NewError(engine.CodeInvalidSelection, "max seats must be between %d and %d", engine.MinSeats, engine.MaxSeats)
	}

	d := &models.Draft{
		ID:           uuid.New(),
		ShareID:      s.newShareID(),
		SetCode:      strings.ToUpper(opts.SetCode),
		MaxSeats:     maxSeats,
		Status:       models.DraftStatusWaiting,
		Settings:     models.DefaultDraftSettings(),
		StateVersion: 1,
		CreatedAt:    s.clock.Now(),
	}
	if err := engine.UpdateSettings(d, opts.Settings); err != nil {
		return nil, err
	}
	host, err := engine.JoinSeat(d, principal)
	if err != nil {
		return nil, err
	}
	d.HostSeatID = host.ID

	if err := s.store.CreateDraft(ctx, d); err != nil {
		return nil, engine.NewError(engine.CodeStorageUnavailable, "create draft: %v", err)
	}
	log.Info().
		Str("draft_id", d.ID.String()).
		Str("share_id", d.ShareID).
		Str("set_code", d.SetCode).
		Msg("draft created")
	return s.respond(d, principal), nil
}

// Get returns the current state, with the caller's private view if seated.
func (s *Service) Get(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.load(ctx, shareID)
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// PollForChange blocks until the draft's version exceeds sinceVersion or
// the wait elapses, then returns the state either way.
func (s *Service) PollForChange(ctx context.Context, shareID, principal string, sinceVersion int64, wait time.Duration) (*StateResponse, error) {
	d, err := s.load(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if d.StateVersion > sinceVersion {
		return s.respond(d, principal), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if _, err := s.hub.WaitForVersion(waitCtx, d.ID, sinceVersion); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return s.Get(ctx, shareID, principal)
}

// Join seats the caller in a waiting draft.
func (s *Service) Join(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		_, err := engine.JoinSeat(m, principal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// Leave gives up the caller's seat. The host cannot leave.
func (s *Service) Leave(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		return engine.Leave(m, principal)
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// AddBot seats a bot at the next free ordinal. Host only.
func (s *Service) AddBot(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		ordinal := 1
		for m.SeatByPrincipal(models.BotPrincipal(ordinal)) != nil {
			ordinal++
		}
		_, err := engine.AddBot(m, ordinal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// RemoveSeat removes any non-host seat from a waiting draft. Host only.
func (s *Service) RemoveSeat(ctx context.Context, shareID, principal string, seatNumber int) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		for _, seat := range m.Seats {
			if seat.SeatNumber == seatNumber {
				return engine.Leave(m, seat.Principal)
			}
		}
		return engine.NewError(engine.CodeNotFound, "no seat %d", seatNumber)
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// RandomizeSeats shuffles the table order. Host only, waiting only.
func (s *Service) RandomizeSeats(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		return engine.RandomizeSeats(m, s.newRNG())
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// UpdateSettings applies a partial settings change. Host only, waiting only.
func (s *Service) UpdateSettings(ctx context.Context, shareID, principal string, patch engine.SettingsPatch) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		return engine.UpdateSettings(m, patch)
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// Start seals the table, generates per-seat product and opens the first
// leader round. Host only.
func (s *Service) Start(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	seed := s.newSeed()
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		if m.Status != models.DraftStatusWaiting {
			return engine.NewError(engine.CodeDraftLocked, "draft already started")
		}
		if len(m.Seats) < engine.MinSeats {
			return engine.NewError(engine.CodeTooFewPlayers, "need at least %d seats, have %d", engine.MinSeats, len(m.Seats))
		}
		pools, err := s.generator.Generate(ctx, m.SetCode, len(m.Seats), m.Settings.PackSize, seed)
		if err != nil {
			return engine.NewError(engine.CodeStorageUnavailable, "generate packs: %v", err)
		}
		return engine.Start(m, s.clock.Now(), seed, pools)
	})
	if err != nil {
		return nil, err
	}
	s.kick(d)
	return s.respond(d, principal), nil
}

// Select stages (or with nil, unstages) the caller's pick. When the last
// outstanding seat selects, the round commits in the same write.
func (s *Service) Select(ctx context.Context, shareID, principal string, cardID *string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		seat := m.SeatByPrincipal(principal)
		if seat == nil || seat.IsBot {
			return engine.NewError(engine.CodeNotSeatOwner, "principal holds no seat")
		}
		if m.Paused {
			return engine.NewError(engine.CodeDraftLocked, "draft is paused")
		}
		if err := engine.Select(m, seat.ID, cardID); err != nil {
			return err
		}
		now := s.clock.Now()
		if engine.AllSeatsSelected(m) {
			return engine.CommitRound(m, now)
		}
		engine.MarkLastPicker(m, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.kick(d)
	return s.respond(d, principal), nil
}

// TogglePause pauses a running draft or resumes a paused one. Host only.
func (s *Service) TogglePause(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		if m.Paused {
			return engine.Resume(m, s.clock.Now())
		}
		return engine.Pause(m, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if !d.Paused {
		s.kick(d)
	}
	return s.respond(d, principal), nil
}

// Cancel terminates the draft. Host only.
func (s *Service) Cancel(ctx context.Context, shareID, principal string) (*StateResponse, error) {
	d, err := s.mutate(ctx, shareID, func(m *models.Draft) error {
		if err := requireHost(m, principal); err != nil {
			return err
		}
		return engine.Cancel(m, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return s.respond(d, principal), nil
}

// Delete removes a terminal draft entirely. Host only.
func (s *Service) Delete(ctx context.Context, shareID, principal string) error {
	d, err := s.load(ctx, shareID)
	if err != nil {
		return err
	}
	if !d.IsHost(principal) {
		return engine.NewError(engine.CodeNotHost, "only the host may delete the draft")
	}
	if !d.Terminal() {
		return engine.NewError(engine.CodeDraftLocked, "only a finished draft can be deleted")
	}
	if err := s.store.DeleteDraft(ctx, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return engine.NewError(engine.CodeStorageUnavailable, "delete draft: %v", err)
	}
	s.hub.PublishDeleted(d)
	log.Info().Str("draft_id", d.ID.String()).Str("share_id", shareID).Msg("draft deleted")
	return nil
}

func requireHost(d *models.Draft, principal string) error {
	if !d.IsHost(principal) {
		return engine.NewError(engine.CodeNotHost, "only the host may do this")
	}
	return nil
}

func (s *Service) load(ctx context.Context, shareID string) (*models.Draft, error) {
	d, err := s.store.LoadDraftByShareID(ctx, shareID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, engine.NewError(engine.CodeNotFound, "no draft %s", shareID)
	}
	if err != nil {
		return nil, engine.NewError(engine.CodeStorageUnavailable, "load draft: %v", err)
	}
	return d, nil
}

// mutate applies one engine transition under the version compare-and-set,
// retrying a bounded number of times when another writer lands first. On
// success the committed state is broadcast and returned.
func (s *Service) mutate(ctx context.Context, shareID string, fn func(*models.Draft) error) (*models.Draft, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		d, err := s.load(ctx, shareID)
		if err != nil {
			return nil, err
		}

		var snap *models.Draft
		newVersion, conflict, err := s.store.UpdateDraft(ctx, d.ID, d.StateVersion, func(m *models.Draft) error {
			if err := fn(m); err != nil {
				return err
			}
			snap = m.Clone()
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil, engine.NewError(engine.CodeNotFound, "no draft %s", shareID)
		}
		if err != nil {
			if engine.CodeOf(err) != "" {
				return nil, err
			}
			return nil, engine.NewError(engine.CodeStorageUnavailable, "update draft: %v", err)
		}
		if conflict {
			log.Debug().
				Str("share_id", shareID).
				Int("attempt", attempt+1).
				Msg("state version conflict, retrying")
			continue
		}

		snap.StateVersion = newVersion
		s.hub.PublishState(snap)
		return snap, nil
	}
	return nil, engine.NewError(engine.CodeStateChanged, "draft changed concurrently, retry")
}

// kick wakes the bot runner when the draft is still picking.
func (s *Service) kick(d *models.Draft) {
	if s.bots != nil && d.Active() {
		s.bots.Kick(d.ID)
	}
}

func (s *Service) newShareID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:shareIDLength]
}

func (s *Service) newSeed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63()
}

func (s *Service) newRNG() *rand.Rand {
	return rand.New(rand.NewSource(s.newSeed()))
}
