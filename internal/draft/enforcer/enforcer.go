// Package enforcer applies the pick timers. A periodic sweep over active
// drafts records when a lone picker becomes the last one standing and, once
// a timer runs out, stages random picks for whoever is late and commits the
// round.
package enforcer

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/draft/broadcast"
	"github.com/twinsuns/draftroom/internal/draft/engine"
	"github.com/twinsuns/draftroom/internal/draft/store"
	"github.com/twinsuns/draftroom/internal/models"
)

// DefaultSweepInterval is how often active drafts are checked. Timers are
// in whole seconds, so a one second sweep keeps expiry error under a tick.
const DefaultSweepInterval = time.Second

// errSkip aborts a CAS write whose precondition no longer holds.
var errSkip = errors.New("draft state moved on")

// Kicker schedules a bot pass after the enforcer changed a draft.
type Kicker interface {
	Kick(draftID uuid.UUID)
}

// Enforcer owns timer expiry. It is the only writer that acts on drafts
// nobody is touching, so a stalled table always comes back to life.
type Enforcer struct {
	store    store.Store
	hub      *broadcast.Hub
	kicker   Kicker
	clock    clockwork.Clock
	interval time.Duration
}

// New builds an enforcer sweeping at DefaultSweepInterval.
func New(st store.Store, hub *broadcast.Hub, kicker Kicker, clock clockwork.Clock) *Enforcer {
	return &Enforcer{
		store:    st,
		hub:      hub,
		kicker:   kicker,
		clock:    clock,
		interval: DefaultSweepInterval,
	}
}

// Run sweeps until ctx is cancelled.
func (e *Enforcer) Run(ctx context.Context) {
	log.Info().Dur("interval", e.interval).Msg("timeout enforcer started")
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timeout enforcer shutting down")
			return
		case <-ticker.Chan():
			e.Sweep(ctx)
		}
	}
}

// Sweep checks every active draft once.
func (e *Enforcer) Sweep(ctx context.Context) {
	ids, err := e.store.ListActiveDraftIDs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list active drafts")
		return
	}
	for _, id := range ids {
		if err := e.checkDraft(ctx, id); err != nil {
			log.Error().Err(err).Str("draft_id", id.String()).Msg("timer sweep failed")
		}
	}
}

func (e *Enforcer) checkDraft(ctx context.Context, id uuid.UUID) error {
	d, err := e.store.LoadDraft(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !d.Active() || d.Paused {
		return nil
	}

	now := e.clock.Now()
	switch {
	case expired(d, now):
		return e.forceExpiredPicks(ctx, d, now)
	case len(d.PickingSeats()) == 1 && d.Phase.LastPickerStartedAt() == nil:
		return e.markLastPicker(ctx, d, now)
	}
	return nil
}

// expired reports whether either pick timer has run out. The round timer is
// measured by PickElapsed, which already deducts pause time; the last-picker
// window start is shifted on resume, so plain wall-clock applies.
func expired(d *models.Draft, now time.Time) bool {
	if d.Settings.RoundTimerEnabled && d.PickStartedAt != nil {
		if d.PickElapsed(now) >= time.Duration(d.Settings.RoundTimerSeconds)*time.Second {
			return true
		}
	}
	if d.Settings.LastPickerTimerEnabled {
		if lp := d.Phase.LastPickerStartedAt(); lp != nil {
			if now.Sub(*lp) >= time.Duration(d.Settings.LastPickerTimerSeconds)*time.Second {
				return true
			}
		}
	}
	return false
}

// markLastPicker persists the last-picker window start. A lost CAS race is
// fine; whoever won either marked it or moved the round on.
func (e *Enforcer) markLastPicker(ctx context.Context, d *models.Draft, now time.Time) error {
	snap, newVersion, err := e.mutate(ctx, d, func(m *models.Draft) error {
		if m.Paused || !engine.MarkLastPicker(m, now) {
			return errSkip
		}
		return nil
	})
	if err != nil || snap == nil {
		return err
	}
	snap.StateVersion = newVersion
	e.hub.PublishState(snap)
	return nil
}

// forceExpiredPicks stages random picks for every seat still picking and
// commits the round, then hands the draft to the bot runner.
func (e *Enforcer) forceExpiredPicks(ctx context.Context, d *models.Draft, now time.Time) error {
	rng := rand.New(rand.NewSource(now.UnixNano()))
	snap, newVersion, err := e.mutate(ctx, d, func(m *models.Draft) error {
		if !m.Active() || m.Paused || !expired(m, now) {
			return errSkip
		}
		for _, s := range m.PickingSeats() {
			if err := engine.ForceRandom(m, s.ID, rng); err != nil {
				return err
			}
		}
		if !engine.AllSeatsSelected(m) {
			return errSkip
		}
		return engine.CommitRound(m, now)
	})
	if err != nil || snap == nil {
		return err
	}
	snap.StateVersion = newVersion
	e.hub.PublishState(snap)
	e.kicker.Kick(d.ID)

	log.Info().
		Str("draft_id", d.ID.String()).
		Str("status", string(snap.Status)).
		Int64("state_version", newVersion).
		Msg("expired round force-committed")
	return nil
}

// mutate runs one CAS write against the loaded version. A conflict or a
// skipped precondition returns a nil snapshot; the next sweep re-evaluates.
func (e *Enforcer) mutate(ctx context.Context, d *models.Draft, fn func(*models.Draft) error) (*models.Draft, int64, error) {
	var snap *models.Draft
	newVersion, conflict, err := e.store.UpdateDraft(ctx, d.ID, d.StateVersion, func(m *models.Draft) error {
		if err := fn(m); err != nil {
			return err
		}
		snap = m.Clone()
		return nil
	})
	switch {
	case errors.Is(err, errSkip), errors.Is(err, store.ErrNotFound):
		return nil, 0, nil
	case err != nil:
		return nil, 0, err
	case conflict:
		return nil, 0, nil
	}
	return snap, newVersion, nil
}
