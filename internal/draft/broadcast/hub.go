// Package broadcast fans out public draft state to live subscribers. The
// hub owns in-process delivery (WebSocket connections, long-pollers); the
// bridge mirrors events across NATS so any replica can serve any draft.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/twinsuns/draftroom/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is dropped rather than allowed to stall the hub.
const subscriberBuffer = 16

// Subscriber is one live listener on a draft. Receive from C; a closed C
// means the hub dropped the subscription (slow consumer or shutdown).
type Subscriber struct {
	C chan Event

	draftID uuid.UUID
	closed  bool
}

// Hub is the in-process fan-out point for draft events. Every mutation
// publishes the resulting public state here; subscribers and version
// waiters are notified without ever blocking the publisher.
type Hub struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]map[*Subscriber]struct{}
	latest   map[uuid.UUID]int64
	waiters  map[uuid.UUID][]*versionWaiter
	forward  func(Event)
	shutdown bool
}

type versionWaiter struct {
	since int64
	ch    chan int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[uuid.UUID]map[*Subscriber]struct{}),
		latest:  make(map[uuid.UUID]int64),
		waiters: make(map[uuid.UUID][]*versionWaiter),
	}
}

// SetForwarder installs the hook that mirrors locally published events to
// other replicas. Must be set before publishing begins.
func (h *Hub) SetForwarder(f func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.forward = f
}

// Subscribe registers a listener for one draft's events.
func (h *Hub) Subscribe(draftID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		C:       make(chan Event, subscriberBuffer),
		draftID: draftID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		sub.closed = true
		close(sub.C)
		return sub
	}
	if h.subs[draftID] == nil {
		h.subs[draftID] = make(map[*Subscriber]struct{})
	}
	h.subs[draftID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a listener and closes its channel. Safe to call
// after the hub already dropped the subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

func (h *Hub) dropLocked(sub *Subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	if set, ok := h.subs[sub.draftID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.draftID)
		}
	}
	close(sub.C)
}

// PublishState projects the draft and fans the snapshot out to local
// subscribers, version waiters, and the forwarder.
func (h *Hub) PublishState(d *models.Draft) {
	h.deliver(Event{
		Type:         EventTypeState,
		DraftID:      d.ID,
		ShareID:      d.ShareID,
		StateVersion: d.StateVersion,
		Timestamp:    time.Now().UTC(),
		State:        NewPublicState(d),
	}, true)
}

// PublishDeleted tells subscribers the draft no longer exists. Waiters are
// released so long-polls do not hang on a dead draft.
func (h *Hub) PublishDeleted(d *models.Draft) {
	h.deliver(Event{
		Type:         EventTypeDraftDeleted,
		DraftID:      d.ID,
		ShareID:      d.ShareID,
		StateVersion: d.StateVersion,
		Timestamp:    time.Now().UTC(),
	}, true)
}

// Inject delivers an event that originated on another replica. It is not
// forwarded again.
func (h *Hub) Inject(ev Event) {
	h.deliver(ev, false)
}

func (h *Hub) deliver(ev Event, forward bool) {
	h.mu.Lock()
	if h.shutdown {
		h.mu.Unlock()
		return
	}

	if ev.StateVersion > h.latest[ev.DraftID] {
		h.latest[ev.DraftID] = ev.StateVersion
	}

	// Wake every waiter satisfied by this version.
	kept := h.waiters[ev.DraftID][:0]
	for _, w := range h.waiters[ev.DraftID] {
		if ev.StateVersion > w.since || ev.Type == EventTypeDraftDeleted {
			w.ch <- ev.StateVersion
		} else {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		delete(h.waiters, ev.DraftID)
	} else {
		h.waiters[ev.DraftID] = kept
	}

	var dropped []*Subscriber
	for sub := range h.subs[ev.DraftID] {
		select {
		case sub.C <- ev:
		default:
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		log.Warn().
			Str("draft_id", ev.DraftID.String()).
			Msg("subscriber buffer full, dropping subscriber")
		h.dropLocked(sub)
	}

	if ev.Type == EventTypeDraftDeleted {
		delete(h.latest, ev.DraftID)
	}

	fwd := h.forward
	h.mu.Unlock()

	if forward && fwd != nil {
		fwd(ev)
	}
}

// WaitForVersion blocks until the draft's published version exceeds since,
// returning the version seen. It returns immediately when a newer version
// was already published, and ctx.Err() on timeout or cancellation.
func (h *Hub) WaitForVersion(ctx context.Context, draftID uuid.UUID, since int64) (int64, error) {
	h.mu.Lock()
	if v := h.latest[draftID]; v > since {
		h.mu.Unlock()
		return v, nil
	}
	w := &versionWaiter{since: since, ch: make(chan int64, 1)}
	h.waiters[draftID] = append(h.waiters[draftID], w)
	h.mu.Unlock()

	select {
	case v := <-w.ch:
		return v, nil
	case <-ctx.Done():
		h.removeWaiter(draftID, w)
		return since, ctx.Err()
	}
}

func (h *Hub) removeWaiter(draftID uuid.UUID, w *versionWaiter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ws := h.waiters[draftID]
	for i, cand := range ws {
		if cand == w {
			h.waiters[draftID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(h.waiters[draftID]) == 0 {
		delete(h.waiters, draftID)
	}
}

// Shutdown closes every subscriber channel and releases every waiter.
// Further publishes and subscriptions are no-ops.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.shutdown {
		return
	}
	h.shutdown = true
	for _, set := range h.subs {
		for sub := range set {
			sub.closed = true
			close(sub.C)
		}
	}
	h.subs = map[uuid.UUID]map[*Subscriber]struct{}{}
	for id, ws := range h.waiters {
		for _, w := range ws {
			w.ch <- h.latest[id]
		}
	}
	h.waiters = map[uuid.UUID][]*versionWaiter{}
}
