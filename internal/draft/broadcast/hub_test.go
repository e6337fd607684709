package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftroom/internal/models"
)

func testDraft(t *testing.T) *models.Draft {
	t.Helper()
	hostSeat := &models.Seat{
		ID:         uuid.New(),
		SeatNumber: 1,
		Principal:  "user:host",
		PickStatus: models.PickStatusPicking,
		CurrentPack: []models.Card{
			{ID: "twi-001", Name: "Hidden Card"},
		},
		SelectedCardID: strPtr("twi-001"),
		DraftedLeaders: []models.Card{{ID: "twi-l01", Name: "Leader", Leader: true}},
		DraftedCards:   []models.Card{{ID: "twi-002"}, {ID: "twi-003"}},
	}
	botSeat := &models.Seat{
		ID:         uuid.New(),
		SeatNumber: 2,
		Principal:  models.BotPrincipal(1),
		IsBot:      true,
		PickStatus: models.PickStatusSelected,
	}
	return &models.Draft{
		ID:           uuid.New(),
		ShareID:      "abc123",
		HostSeatID:   hostSeat.ID,
		SetCode:      "TWI",
		MaxSeats:     8,
		Status:       models.DraftStatusPackDraft,
		Phase:        models.PhaseState{Pack: &models.PackPhase{PackNumber: 1, PickInPack: 3}},
		Settings:     models.DefaultDraftSettings(),
		StateVersion: 7,
		CreatedAt:    time.Now().UTC(),
		Seats:        []*models.Seat{hostSeat, botSeat},
	}
}

func strPtr(s string) *string { return &s }

func TestPublicStateHidesHands(t *testing.T) {
	d := testDraft(t)
	state := NewPublicState(d)

	assert.Equal(t, "abc123", state.ShareID)
	assert.Equal(t, int64(7), state.StateVersion)
	require.Len(t, state.Seats, 2)

	host := state.Seats[0]
	assert.True(t, host.IsHost)
	assert.Equal(t, models.PickStatusPicking, host.PickStatus)
	assert.Equal(t, 2, host.DraftedCardCount)
	assert.Len(t, host.DraftedLeaders, 1)

	bot := state.Seats[1]
	assert.True(t, bot.IsBot)
	assert.Equal(t, models.PickStatusSelected, bot.PickStatus)
}

func TestSubscribeReceivesPublishedState(t *testing.T) {
	h := NewHub()
	d := testDraft(t)

	sub := h.Subscribe(d.ID)
	defer h.Unsubscribe(sub)

	h.PublishState(d)

	select {
	case ev := <-sub.C:
		assert.Equal(t, EventTypeState, ev.Type)
		assert.Equal(t, d.ID, ev.DraftID)
		assert.Equal(t, int64(7), ev.StateVersion)
		require.NotNil(t, ev.State)
		assert.Equal(t, d.ShareID, ev.State.ShareID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscriberIsolationByDraft(t *testing.T) {
	h := NewHub()
	d := testDraft(t)

	other := h.Subscribe(uuid.New())
	defer h.Unsubscribe(other)

	h.PublishState(d)
	select {
	case ev := <-other.C:
		t.Fatalf("unexpected event %v for unrelated draft", ev.Type)
	default:
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := NewHub()
	d := testDraft(t)
	sub := h.Subscribe(d.ID)

	for i := 0; i <= subscriberBuffer; i++ {
		d.StateVersion++
		h.PublishState(d)
	}

	// Drain: the channel must be closed after the overflow publish.
	closed := false
	for !closed {
		select {
		case _, ok := <-sub.C:
			if !ok {
				closed = true
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber channel never closed")
		}
	}
}

func TestWaitForVersionImmediate(t *testing.T) {
	h := NewHub()
	d := testDraft(t)
	h.PublishState(d)

	v, err := h.WaitForVersion(context.Background(), d.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestWaitForVersionBlocksUntilPublish(t *testing.T) {
	h := NewHub()
	d := testDraft(t)
	h.PublishState(d)

	done := make(chan int64, 1)
	go func() {
		v, err := h.WaitForVersion(context.Background(), d.ID, 7)
		if err != nil {
			t.Error(err)
		}
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("waiter returned before a newer version was published")
	case <-time.After(50 * time.Millisecond):
	}

	d.StateVersion = 8
	h.PublishState(d)

	select {
	case v := <-done:
		assert.Equal(t, int64(8), v)
	case <-time.After(time.Second):
		t.Fatal("waiter never released")
	}
}

func TestWaitForVersionTimeout(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.WaitForVersion(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeletedReleasesWaiters(t *testing.T) {
	h := NewHub()
	d := testDraft(t)
	h.PublishState(d)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := h.WaitForVersion(context.Background(), d.ID, 99)
		assert.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	h.PublishDeleted(d)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deletion did not release the waiter")
	}
}

func TestInjectIsNotForwarded(t *testing.T) {
	h := NewHub()
	d := testDraft(t)

	forwarded := make(chan Event, 4)
	h.SetForwarder(func(ev Event) { forwarded <- ev })

	h.Inject(Event{Type: EventTypeState, DraftID: d.ID, StateVersion: 1})
	select {
	case ev := <-forwarded:
		t.Fatalf("injected event was forwarded: %v", ev.Type)
	default:
	}

	h.PublishState(d)
	select {
	case ev := <-forwarded:
		assert.Equal(t, EventTypeState, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("local publish was not forwarded")
	}
}

func TestShutdownClosesSubscribers(t *testing.T) {
	h := NewHub()
	d := testDraft(t)
	sub := h.Subscribe(d.ID)

	h.Shutdown()

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed after shutdown")

	// Post-shutdown subscriptions come back already closed.
	late := h.Subscribe(d.ID)
	_, ok = <-late.C
	assert.False(t, ok)
}
