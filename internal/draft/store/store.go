// Package store persists draft aggregates. The one write primitive is a
// state-version compare-and-set over the whole aggregate (draft row plus
// seat rows); the one lock primitive is the advisory bot lease.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/twinsuns/draftroom/internal/models"
)

// ErrNotFound is returned when a draft id or share id is unknown.
var ErrNotFound = errors.New("draft not found")

// DefaultBotLeaseAge is how old a bot lease must be before another runner
// may reclaim it. Kept at the source's 30s constant.
const DefaultBotLeaseAge = 30 * time.Second

// Store is the persistence contract for draft aggregates.
//
// UpdateDraft implements optimistic concurrency: the mutator runs over a
// freshly loaded aggregate, and the write only lands if the stored
// state_version still equals expectedVersion. A lost race reports
// conflict=true in-band; callers retry from a fresh read. Real storage
// failures come back as errors.
type Store interface {
	CreateDraft(ctx context.Context, d *models.Draft) error
	LoadDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	LoadDraftByShareID(ctx context.Context, shareID string) (*models.Draft, error)
	UpdateDraft(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate func(*models.Draft) error) (newVersion int64, conflict bool, err error)
	DeleteDraft(ctx context.Context, id uuid.UUID) error

	// ListActiveDraftIDs returns ids of drafts in a picking phase, for the
	// timeout enforcer's sweep.
	ListActiveDraftIDs(ctx context.Context) ([]uuid.UUID, error)

	// AcquireBotLease sets bot_processing_since=now iff it is unset or older
	// than maxAge, as a single atomic conditional update.
	AcquireBotLease(ctx context.Context, id uuid.UUID, maxAge time.Duration) (bool, error)
	// RefreshBotLease unconditionally bumps the lease timestamp; only the
	// current holder may call it.
	RefreshBotLease(ctx context.Context, id uuid.UUID) error
	ReleaseBotLease(ctx context.Context, id uuid.UUID) error
}
