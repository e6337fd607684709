package models

// Card is a single printable card as the draft engine sees it. The full
// catalog entry (art, text, pricing) lives outside the coordinator; the
// engine only needs identity plus the fields bot scoring looks at.
type Card struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aspects []string `json:"aspects,omitempty"`
	Rarity  string   `json:"rarity,omitempty"`
	Cost    int      `json:"cost,omitempty"`
	Leader  bool     `json:"leader,omitempty"`
}

// CardIDs returns the ids of cards in order.
func CardIDs(cards []Card) []string {
	ids := make([]string, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

// FindCard returns the index of the card with the given id, or -1.
func FindCard(cards []Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// SeatPool is everything the pack generator produces for one seat:
// one leader offering per leader round and one booster per pack round.
type SeatPool struct {
	LeaderOfferings [][]Card `json:"leader_offerings"` // indexed by leader round
	Packs           [][]Card `json:"packs"`            // indexed by pack number
}
