package bots

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/broadcast"
	"github.com/twinsuns/draftroom/internal/draft/engine"
	"github.com/twinsuns/draftroom/internal/draft/store"
	"github.com/twinsuns/draftroom/internal/models"
)

// maxIterations caps one lease-holding pass. An all-bot draft finishes in
// well under this many steps; the cap keeps a logic bug from pinning the
// lease forever.
const maxIterations = 100

// errNoWork aborts a CAS write whose mutator found nothing for bots to do.
var errNoWork = errors.New("no bot work")

// Runner drives bot seats. Mutations kick it after every state change; it
// takes the draft's bot lease, stages bot selections and commits ready
// rounds until the draft no longer needs it, then lets the lease go.
type Runner struct {
	store   store.Store
	hub     *broadcast.Hub
	factory Factory
	clock   clockwork.Clock
	kicks   chan uuid.UUID

	mu        sync.Mutex
	behaviors map[uuid.UUID]Behavior
}

// NewRunner builds a runner. Kicks are buffered; a dropped kick is
// recovered by the next mutation or enforcer sweep on the same draft.
func NewRunner(st store.Store, hub *broadcast.Hub, factory Factory, clock clockwork.Clock) *Runner {
	return &Runner{
		store:     st,
		hub:       hub,
		factory:   factory,
		clock:     clock,
		kicks:     make(chan uuid.UUID, 256),
		behaviors: make(map[uuid.UUID]Behavior),
	}
}

// Kick schedules a bot pass for the draft. Never blocks.
func (r *Runner) Kick(draftID uuid.UUID) {
	select {
	case r.kicks <- draftID:
	default:
		log.Warn().Str("draft_id", draftID.String()).Msg("bot kick queue full, dropping kick")
	}
}

// Start consumes kicks until ctx is cancelled. Each draft is processed on
// its own goroutine; the bot lease keeps concurrent passes over the same
// draft from double-acting.
func (r *Runner) Start(ctx context.Context) {
	log.Info().Msg("bot runner started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("bot runner shutting down")
			return
		case draftID := <-r.kicks:
			go func() {
				if err := r.ProcessBotTurns(ctx, draftID); err != nil {
					log.Error().Err(err).Str("draft_id", draftID.String()).Msg("bot pass failed")
				}
			}()
		}
	}
}

// ProcessBotTurns runs one lease-guarded bot pass over the draft. It is a
// no-op when another runner holds a fresh lease or the draft needs nothing.
func (r *Runner) ProcessBotTurns(ctx context.Context, draftID uuid.UUID) error {
	ok, err := r.store.AcquireBotLease(ctx, draftID, store.DefaultBotLeaseAge)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := r.store.ReleaseBotLease(ctx, draftID); err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("draft_id", draftID.String()).Msg("release bot lease")
		}
	}()

	for i := 0; i < maxIterations; i++ {
		progressed, err := r.step(ctx, draftID)
		if err != nil || !progressed {
			return err
		}
		if err := r.store.RefreshBotLease(ctx, draftID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
	}
	log.Warn().Str("draft_id", draftID.String()).Msg("bot pass hit iteration cap")
	return nil
}

// step performs at most one persisted transition: commit a fully selected
// round, or stage selections for every picking bot and arm the last-picker
// timer. Returns whether anything happened.
func (r *Runner) step(ctx context.Context, draftID uuid.UUID) (bool, error) {
	d, err := r.store.LoadDraft(ctx, draftID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !d.Active() {
		r.evictBehaviors(d)
		return false, nil
	}
	if d.Paused {
		return false, nil
	}

	now := r.clock.Now()
	var snap *models.Draft
	newVersion, conflict, err := r.store.UpdateDraft(ctx, draftID, d.StateVersion, func(m *models.Draft) error {
		worked, err := r.advance(m, now)
		if err != nil {
			return err
		}
		if !worked {
			return errNoWork
		}
		snap = m.Clone()
		return nil
	})
	switch {
	case errors.Is(err, errNoWork):
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	case conflict:
		// Someone else moved the draft; look again.
		return true, nil
	}

	snap.StateVersion = newVersion
	r.hub.PublishState(snap)
	if !snap.Active() {
		r.evictBehaviors(snap)
	}
	return true, nil
}

// behaviorFor returns the seat's behavior, constructing it on first use.
// A behavior lives for the whole draft: it carries learning state and an
// rng stream that must not restart between picks.
func (r *Runner) behaviorFor(seatID uuid.UUID, seed int64) Behavior {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.behaviors[seatID]
	if !ok {
		b = r.factory(seatID, seed)
		r.behaviors[seatID] = b
	}
	return b
}

func (r *Runner) evictBehaviors(d *models.Draft) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, seat := range d.Seats {
		delete(r.behaviors, seat.ID)
	}
}

func (r *Runner) advance(d *models.Draft, now time.Time) (bool, error) {
	if engine.AllSeatsSelected(d) {
		return true, engine.CommitRound(d, now)
	}

	worked := false
	for _, seat := range d.SeatsInOrder() {
		if !seat.IsBot || seat.PickStatus != models.PickStatusPicking {
			continue
		}
		hand := seat.Hand(d.Status)
		if len(hand) == 0 {
			continue
		}
		behavior := r.behaviorFor(seat.ID, d.Seed)
		var pick models.Card
		if d.Status == models.DraftStatusLeaderDraft {
			pick = behavior.SelectLeader(seat, hand)
		} else {
			pick = behavior.SelectCard(seat, hand)
		}
		id := pick.ID
		if err := engine.Select(d, seat.ID, &id); err != nil {
			return false, err
		}
		worked = true
	}

	if engine.MarkLastPicker(d, now) {
		worked = true
	}
	return worked, nil
}
