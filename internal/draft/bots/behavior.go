// Package bots fills empty seats with automated pickers. The runner turns
// bot seats' pick windows into staged selections under the store's bot
// lease; behaviors decide which card a bot takes.
package bots

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/twinsuns/draftroom/internal/models"
)

// Behavior chooses cards for one bot seat. Both methods are called with a
// non-empty hand and must return one of its cards.
type Behavior interface {
	SelectLeader(seat *models.Seat, offering []models.Card) models.Card
	SelectCard(seat *models.Seat, pack []models.Card) models.Card
}

// Factory builds the behavior for a bot seat. The seed is derived from the
// draft seed and seat id so a rerun of the same draft drafts the same deck.
type Factory func(seatID uuid.UUID, seed int64) Behavior

// NewScoringBehavior is the default Factory.
func NewScoringBehavior(seatID uuid.UUID, seed int64) Behavior {
	mixed := seed
	for _, b := range seatID[:] {
		mixed = mixed*31 + int64(b)
	}
	return &scoringBehavior{rng: rand.New(rand.NewSource(mixed))}
}

var _ Factory = NewScoringBehavior

// scoringBehavior ranks cards by rarity power and aspect affinity with the
// leaders the seat has already drafted, with a little seeded jitter so two
// bots in the same draft do not mirror each other.
type scoringBehavior struct {
	rng *rand.Rand
}

var rarityPower = map[string]float64{
	"common":    1,
	"uncommon":  2,
	"rare":      4,
	"legendary": 6,
}

func (b *scoringBehavior) SelectLeader(seat *models.Seat, offering []models.Card) models.Card {
	return b.best(seat, offering)
}

func (b *scoringBehavior) SelectCard(seat *models.Seat, pack []models.Card) models.Card {
	return b.best(seat, pack)
}

func (b *scoringBehavior) best(seat *models.Seat, hand []models.Card) models.Card {
	affinity := make(map[string]int)
	for _, l := range seat.DraftedLeaders {
		for _, a := range l.Aspects {
			affinity[a]++
		}
	}

	bestIdx := 0
	bestScore := -1.0
	for i, c := range hand {
		score := rarityPower[c.Rarity]
		for _, a := range c.Aspects {
			score += 1.5 * float64(affinity[a])
		}
		score += b.rng.Float64()
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return hand[bestIdx]
}
