package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftroom/internal/models"
)

func newStoredDraft(t *testing.T, s *MemoryStore) *models.Draft {
	t.Helper()
	d := &models.Draft{
		ID:       uuid.New(),
		ShareID:  "abcd1234",
		SetCode:  "TWI",
		MaxSeats: 4,
		Status:   models.DraftStatusWaiting,
		Settings: models.DefaultDraftSettings(),
	}
	require.NoError(t, s.CreateDraft(context.Background(), d))
	return d
}

func TestMemoryStoreLoad(t *testing.T) {
	s := NewMemoryStore(clockwork.NewFakeClock())
	d := newStoredDraft(t, s)

	got, err := s.LoadDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ShareID, got.ShareID)

	byShare, err := s.LoadDraftByShareID(context.Background(), d.ShareID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, byShare.ID)

	_, err = s.LoadDraft(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCAS(t *testing.T) {
	s := NewMemoryStore(clockwork.NewFakeClock())
	d := newStoredDraft(t, s)
	ctx := context.Background()

	v, conflict, err := s.UpdateDraft(ctx, d.ID, 0, func(d *models.Draft) error {
		d.SetCode = "SOR"
		return nil
	})
	require.NoError(t, err)
	assert.False(t, conflict)
	assert.Equal(t, int64(1), v)

	// Stale expected version reports conflict in-band, not as an error.
	_, conflict, err = s.UpdateDraft(ctx, d.ID, 0, func(d *models.Draft) error {
		d.SetCode = "LOST"
		return nil
	})
	require.NoError(t, err)
	assert.True(t, conflict)

	got, err := s.LoadDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "SOR", got.SetCode)
	assert.Equal(t, int64(1), got.StateVersion)
}

func TestMemoryStoreMutatorErrorDiscardsWrite(t *testing.T) {
	s := NewMemoryStore(clockwork.NewFakeClock())
	d := newStoredDraft(t, s)
	ctx := context.Background()

	wantErr := assert.AnError
	_, _, err := s.UpdateDraft(ctx, d.ID, 0, func(d *models.Draft) error {
		d.SetCode = "SHOULD-NOT-LAND"
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	got, err := s.LoadDraft(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "TWI", got.SetCode)
	assert.Equal(t, int64(0), got.StateVersion)
}

func TestMemoryStoreBotLease(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(clock)
	d := newStoredDraft(t, s)
	ctx := context.Background()

	ok, err := s.AcquireBotLease(ctx, d.ID, DefaultBotLeaseAge)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireBotLease(ctx, d.ID, DefaultBotLeaseAge)
	require.NoError(t, err)
	assert.False(t, ok, "held lease is not re-acquirable")

	// A stale lease is reclaimable after the max age.
	clock.Advance(DefaultBotLeaseAge + time.Second)
	ok, err = s.AcquireBotLease(ctx, d.ID, DefaultBotLeaseAge)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.ReleaseBotLease(ctx, d.ID))
	ok, err = s.AcquireBotLease(ctx, d.ID, DefaultBotLeaseAge)
	require.NoError(t, err)
	assert.True(t, ok, "released lease is immediately acquirable")
}

func TestMemoryStoreListActive(t *testing.T) {
	s := NewMemoryStore(clockwork.NewFakeClock())
	ctx := context.Background()

	waiting := newStoredDraft(t, s)
	_ = waiting

	active := &models.Draft{
		ID:       uuid.New(),
		ShareID:  "active01",
		Status:   models.DraftStatusPackDraft,
		Settings: models.DefaultDraftSettings(),
	}
	require.NoError(t, s.CreateDraft(ctx, active))

	ids, err := s.ListActiveDraftIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{active.ID}, ids)
}
