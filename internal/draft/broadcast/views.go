package broadcast

import (
	"time"

	"github.com/google/uuid"

	"github.com/twinsuns/draftroom/internal/models"
)

// PublicSeat is the spectator-safe view of one seat. Hidden hand state
// (offering, current pack, staged selection) never appears here.
type PublicSeat struct {
	SeatNumber       int               `json:"seat_number"`
	Principal        string            `json:"principal"`
	IsBot            bool              `json:"is_bot"`
	IsHost           bool              `json:"is_host"`
	PickStatus       models.PickStatus `json:"pick_status"`
	DraftedLeaders   []models.Card     `json:"drafted_leaders"`
	DraftedCardCount int               `json:"drafted_card_count"`
}

// PublicState is the broadcast projection of a draft: everything every
// subscriber may see, tagged with the state version for reconciliation.
type PublicState struct {
	DraftID                  uuid.UUID            `json:"draft_id"`
	ShareID                  string               `json:"share_id"`
	SetCode                  string               `json:"set_code"`
	Status                   models.DraftStatus   `json:"status"`
	Phase                    models.PhaseState    `json:"phase"`
	MaxSeats                 int                  `json:"max_seats"`
	Settings                 models.DraftSettings `json:"settings"`
	Paused                   bool                 `json:"paused"`
	PausedAccumulatedSeconds int64                `json:"paused_accumulated_seconds"`
	PickStartedAt            *time.Time           `json:"pick_started_at,omitempty"`
	CreatedAt                time.Time            `json:"created_at"`
	StartedAt                *time.Time           `json:"started_at,omitempty"`
	CompletedAt              *time.Time           `json:"completed_at,omitempty"`
	StateVersion             int64                `json:"state_version"`
	Seats                    []PublicSeat         `json:"seats"`
}

// NewPublicState projects a draft aggregate into its broadcast form.
func NewPublicState(d *models.Draft) *PublicState {
	out := &PublicState{
		DraftID:                  d.ID,
		ShareID:                  d.ShareID,
		SetCode:                  d.SetCode,
		Status:                   d.Status,
		Phase:                    *d.Phase.Clone(),
		MaxSeats:                 d.MaxSeats,
		Settings:                 d.Settings,
		Paused:                   d.Paused,
		PausedAccumulatedSeconds: int64(d.PausedAccumulated / time.Second),
		PickStartedAt:            d.PickStartedAt,
		CreatedAt:                d.CreatedAt,
		StartedAt:                d.StartedAt,
		CompletedAt:              d.CompletedAt,
		StateVersion:             d.StateVersion,
	}
	for _, s := range d.SeatsInOrder() {
		out.Seats = append(out.Seats, PublicSeat{
			SeatNumber:       s.SeatNumber,
			Principal:        s.Principal,
			IsBot:            s.IsBot,
			IsHost:           s.ID == d.HostSeatID,
			PickStatus:       s.PickStatus,
			DraftedLeaders:   append([]models.Card(nil), s.DraftedLeaders...),
			DraftedCardCount: len(s.DraftedCards),
		})
	}
	return out
}
