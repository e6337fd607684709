package broadcast

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what a broadcast event carries.
type EventType string

const (
	// EventTypeState carries a full public state snapshot.
	EventTypeState EventType = "state"
	// EventTypeDraftDeleted tells subscribers the draft is gone.
	EventTypeDraftDeleted EventType = "draft_deleted"
)

// Event is the envelope fanned out to every subscriber of a draft. State
// events always carry the full projection; clients reconcile by version
// rather than by diffing.
type Event struct {
	Type         EventType    `json:"type"`
	DraftID      uuid.UUID    `json:"draft_id"`
	ShareID      string       `json:"share_id"`
	StateVersion int64        `json:"state_version"`
	Timestamp    time.Time    `json:"timestamp"`
	State        *PublicState `json:"state,omitempty"`
}
