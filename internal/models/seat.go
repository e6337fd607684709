package models

import (
	"fmt"

	"github.com/google/uuid"
)

// PickStatus defines where a seat is within the current pick window.
type PickStatus string

const (
	PickStatusIdle     PickStatus = "IDLE"
	PickStatusPicking  PickStatus = "PICKING"
	PickStatusSelected PickStatus = "SELECTED"
	PickStatusPicked   PickStatus = "PICKED"
)

// BotPrincipal returns the synthetic principal for a bot seat.
func BotPrincipal(ordinal int) string {
	return fmt.Sprintf("bot:%d", ordinal)
}

// Seat is one participant slot in a draft, human or bot. The hand fields
// (LeaderOffering, CurrentPack, SelectedCardID) are private to the seat
// owner and never leave the server in public projections.
type Seat struct {
	ID         uuid.UUID  `json:"id"`
	DraftID    uuid.UUID  `json:"draft_id"`
	SeatNumber int        `json:"seat_number"`
	Principal  string     `json:"principal"`
	IsBot      bool       `json:"is_bot"`
	PickStatus PickStatus `json:"pick_status"`

	SelectedCardID *string `json:"selected_card_id,omitempty"`

	LeaderOffering []Card `json:"leader_offering"`
	CurrentPack    []Card `json:"current_pack"`
	DraftedLeaders []Card `json:"drafted_leaders"`
	DraftedCards   []Card `json:"drafted_cards"`

	// Per-seat supply produced by the pack generator at start: offerings for
	// leader rounds not yet reached and boosters not yet opened.
	LeaderQueue [][]Card `json:"leader_queue"`
	PackQueue   [][]Card `json:"pack_queue"`
}

// Hand returns the seat's currently visible options for the given phase.
func (s *Seat) Hand(status DraftStatus) []Card {
	switch status {
	case DraftStatusLeaderDraft:
		return s.LeaderOffering
	case DraftStatusPackDraft:
		return s.CurrentPack
	}
	return nil
}

// Clone returns a deep copy of the seat.
func (s *Seat) Clone() *Seat {
	out := *s
	if s.SelectedCardID != nil {
		id := *s.SelectedCardID
		out.SelectedCardID = &id
	}
	out.LeaderOffering = cloneCards(s.LeaderOffering)
	out.CurrentPack = cloneCards(s.CurrentPack)
	out.DraftedLeaders = cloneCards(s.DraftedLeaders)
	out.DraftedCards = cloneCards(s.DraftedCards)
	out.LeaderQueue = cloneCardLists(s.LeaderQueue)
	out.PackQueue = cloneCardLists(s.PackQueue)
	return &out
}

func cloneCards(cards []Card) []Card {
	if cards == nil {
		return nil
	}
	out := make([]Card, len(cards))
	for i, c := range cards {
		out[i] = c
		out[i].Aspects = append([]string(nil), c.Aspects...)
	}
	return out
}

func cloneCardLists(lists [][]Card) [][]Card {
	if lists == nil {
		return nil
	}
	out := make([][]Card, len(lists))
	for i, l := range lists {
		out[i] = cloneCards(l)
	}
	return out
}
