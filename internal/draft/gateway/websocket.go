package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/broadcast"
)

// ConnectionConfig holds the WebSocket transport knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns sane transport defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// ConnectionManager upgrades HTTP requests and pumps hub events onto the
// socket. The hub already fans out per draft; each connection just drains
// its own subscription.
type ConnectionManager struct {
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// NewConnectionManager builds a manager over the hub.
func NewConnectionManager(hub *broadcast.Hub, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

type wsConnection struct {
	conn    *websocket.Conn
	sub     *broadcast.Subscriber
	manager *ConnectionManager
	initial broadcast.Event
}

// Serve upgrades the request and starts the read/write pumps. The current
// state is pushed first so a fresh client needs no separate fetch. The
// subscription is opened before the snapshot is taken, so a write landing
// between the two arrives on the subscription instead of being lost.
func (cm *ConnectionManager) Serve(w http.ResponseWriter, r *http.Request, draftID uuid.UUID, fetch func() (*broadcast.PublicState, error)) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	sub := cm.hub.Subscribe(draftID)
	state, err := fetch()
	if err != nil {
		cm.hub.Unsubscribe(sub)
		conn.Close()
		return fmt.Errorf("snapshot initial state: %w", err)
	}

	c := &wsConnection{
		conn:    conn,
		sub:     sub,
		manager: cm,
		initial: broadcast.Event{
			Type:         broadcast.EventTypeState,
			DraftID:      state.DraftID,
			ShareID:      state.ShareID,
			StateVersion: state.StateVersion,
			Timestamp:    time.Now().UTC(),
			State:        state,
		},
	}
	go c.writePump()
	go c.readPump()

	log.Info().
		Str("draft_id", state.DraftID.String()).
		Str("share_id", state.ShareID).
		Msg("websocket connection established")
	return nil
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.hub.Unsubscribe(c.sub)
	}()

	if err := c.writeEvent(c.initial); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				// Hub dropped us (slow consumer or shutdown).
				c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeEvent(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConnection) writeEvent(ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("marshal websocket event")
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readPump drains (and discards) client frames so pongs and closes are
// processed. The channel is push-only; clients mutate over HTTP.
func (c *wsConnection) readPump() {
	defer func() {
		c.manager.hub.Unsubscribe(c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
