package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/twinsuns/draftroom/internal/models"
)

// MemoryStore is an in-process Store with the same CAS and lease semantics
// as the Postgres implementation. It backs tests and single-node dev mode.
type MemoryStore struct {
	mu      sync.RWMutex
	drafts  map[uuid.UUID]*models.Draft
	byShare map[string]uuid.UUID
	clock   clockwork.Clock
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		drafts:  make(map[uuid.UUID]*models.Draft),
		byShare: make(map[string]uuid.UUID),
		clock:   clock,
	}
}

func (m *MemoryStore) CreateDraft(_ context.Context, d *models.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[d.ID] = d.Clone()
	m.byShare[d.ShareID] = d.ID
	return nil
}

func (m *MemoryStore) LoadDraft(_ context.Context, id uuid.UUID) (*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drafts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *MemoryStore) LoadDraftByShareID(_ context.Context, shareID string) (*models.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byShare[shareID]
	if !ok {
		return nil, ErrNotFound
	}
	return m.drafts[id].Clone(), nil
}

func (m *MemoryStore) UpdateDraft(_ context.Context, id uuid.UUID, expectedVersion int64, mutate func(*models.Draft) error) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.drafts[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	if cur.StateVersion != expectedVersion {
		return 0, true, nil
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return 0, false, err
	}
	next.StateVersion = expectedVersion + 1
	m.drafts[id] = next
	return next.StateVersion, false, nil
}

func (m *MemoryStore) DeleteDraft(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byShare, d.ShareID)
	delete(m.drafts, id)
	return nil
}

func (m *MemoryStore) ListActiveDraftIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uuid.UUID
	for id, d := range m.drafts {
		if d.Active() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *MemoryStore) AcquireBotLease(_ context.Context, id uuid.UUID, maxAge time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return false, ErrNotFound
	}
	now := m.clock.Now()
	if d.BotProcessingSince != nil && now.Sub(*d.BotProcessingSince) < maxAge {
		return false, nil
	}
	d.BotProcessingSince = &now
	return true, nil
}

func (m *MemoryStore) RefreshBotLease(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return ErrNotFound
	}
	now := m.clock.Now()
	d.BotProcessingSince = &now
	return nil
}

func (m *MemoryStore) ReleaseBotLease(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return ErrNotFound
	}
	d.BotProcessingSince = nil
	return nil
}

var _ Store = (*MemoryStore)(nil)
