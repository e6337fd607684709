package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// BridgeConfig holds NATS connection settings for the cross-replica bridge.
type BridgeConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultBridgeConfig returns the bridge defaults: local NATS, infinite
// reconnects.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "draftroom.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Bridge mirrors hub events across replicas over NATS. Each replica
// publishes its local events and injects everyone else's; the origin tag
// keeps a replica from re-delivering its own messages.
type Bridge struct {
	hub    *Hub
	nc     *nats.Conn
	sub    *nats.Subscription
	config BridgeConfig
	origin string
}

type bridgeEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// NewBridge connects to NATS and wires the hub's forwarder. Events
// published to the hub after this call are mirrored to other replicas.
func NewBridge(hub *Hub, config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := &Bridge{
		hub:    hub,
		nc:     nc,
		config: config,
		origin: uuid.New().String(),
	}

	b.sub, err = nc.Subscribe(config.SubjectPrefix+".*", b.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s.*: %w", config.SubjectPrefix, err)
	}

	hub.SetForwarder(b.publish)

	log.Info().
		Str("url", config.URL).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("broadcast bridge connected")
	return b, nil
}

func (b *Bridge) publish(ev Event) {
	data, err := json.Marshal(bridgeEnvelope{Origin: b.origin, Event: ev})
	if err != nil {
		log.Error().Err(err).Msg("marshal bridge envelope")
		return
	}
	subject := fmt.Sprintf("%s.%s", b.config.SubjectPrefix, ev.ShareID)
	if err := b.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("publish bridge event")
	}
}

func (b *Bridge) handleMessage(msg *nats.Msg) {
	var envelope bridgeEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("unmarshal bridge envelope")
		return
	}
	if envelope.Origin == b.origin {
		return
	}
	b.hub.Inject(envelope.Event)
}

// Close drains the subscription and closes the NATS connection.
func (b *Bridge) Close() {
	b.hub.SetForwarder(nil)
	if b.sub != nil {
		if err := b.sub.Drain(); err != nil {
			log.Error().Err(err).Msg("drain bridge subscription")
		}
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
