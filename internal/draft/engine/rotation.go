package engine

import (
	"time"

	"github.com/twinsuns/draftroom/internal/models"
)

// Pass directions. LEFT sends seat k's residual hand to seat k-1 (mod N),
// RIGHT to seat k+1.
const (
	passLeft  = -1
	passRight = +1
)

// commitLeaderRound finalizes one leader round. The residual offerings pass
// RIGHT after rounds 1 and 2 and are joined by the next round's fresh
// offering; after round 3 they are discarded and pack draft begins.
func commitLeaderRound(d *models.Draft, now time.Time) {
	seats := d.SeatsInOrder()
	for _, s := range seats {
		moveSelected(s, &s.LeaderOffering, &s.DraftedLeaders)
	}

	round := d.Phase.Leader.LeaderRound
	if round >= models.LeaderRounds {
		beginPackDraft(d, now)
		return
	}

	rotateHands(seats, passRight, func(s *models.Seat) *[]models.Card { return &s.LeaderOffering })
	for _, s := range seats {
		if len(s.LeaderQueue) > 0 {
			s.LeaderOffering = append(s.LeaderOffering, s.LeaderQueue[0]...)
			s.LeaderQueue = s.LeaderQueue[1:]
		}
	}
	d.Phase.Leader = &models.LeaderPhase{LeaderRound: round + 1}
	openPickWindow(d, now)
}

// commitPackRound finalizes one pick of the pack phase. Residual packs pass
// LEFT on odd pack numbers and RIGHT on even ones; empty hands open the next
// pack, and an empty supply completes the draft.
func commitPackRound(d *models.Draft, now time.Time) {
	seats := d.SeatsInOrder()
	for _, s := range seats {
		moveSelected(s, &s.CurrentPack, &s.DraftedCards)
	}

	pp := d.Phase.Pack
	dir := passLeft
	if pp.PackNumber%2 == 0 {
		dir = passRight
	}
	rotateHands(seats, dir, func(s *models.Seat) *[]models.Card { return &s.CurrentPack })

	if handsEmpty(seats) {
		if !openNextPack(seats) {
			complete(d, now)
			return
		}
		d.Phase.Pack = &models.PackPhase{PackNumber: pp.PackNumber + 1, PickInPack: 1}
	} else {
		d.Phase.Pack = &models.PackPhase{PackNumber: pp.PackNumber, PickInPack: pp.PickInPack + 1}
	}
	openPickWindow(d, now)
}

func beginPackDraft(d *models.Draft, now time.Time) {
	seats := d.SeatsInOrder()
	for _, s := range seats {
		s.LeaderOffering = nil
		s.LeaderQueue = nil
	}
	if !openNextPack(seats) {
		complete(d, now)
		return
	}
	d.Status = models.DraftStatusPackDraft
	d.Phase = models.PhaseState{Pack: &models.PackPhase{PackNumber: 1, PickInPack: 1}}
	openPickWindow(d, now)
}

// openNextPack places each seat's next booster. Returns false when the
// supply is exhausted.
func openNextPack(seats []*models.Seat) bool {
	opened := false
	for _, s := range seats {
		if len(s.PackQueue) > 0 {
			s.CurrentPack = s.PackQueue[0]
			s.PackQueue = s.PackQueue[1:]
			opened = true
		} else {
			s.CurrentPack = nil
		}
	}
	return opened
}

// openPickWindow starts a fresh pick window: seats with cards in hand go to
// PICKING, the rest sit out, and the last-picker timer is cleared.
func openPickWindow(d *models.Draft, now time.Time) {
	d.PickStartedAt = &now
	d.Phase.SetLastPickerStartedAt(nil)
	for _, s := range d.Seats {
		s.SelectedCardID = nil
		if len(s.Hand(d.Status)) > 0 {
			s.PickStatus = models.PickStatusPicking
		} else {
			s.PickStatus = models.PickStatusIdle
		}
	}
}

func complete(d *models.Draft, now time.Time) {
	d.Status = models.DraftStatusCompleted
	d.Phase = models.PhaseState{}
	d.CompletedAt = &now
	d.PickStartedAt = nil
	for _, s := range d.Seats {
		s.PickStatus = models.PickStatusIdle
		s.SelectedCardID = nil
		s.CurrentPack = nil
	}
}

// moveSelected moves the staged card out of the hand into the drafted list
// and marks the seat picked for this window.
func moveSelected(s *models.Seat, hand *[]models.Card, drafted *[]models.Card) {
	if s.SelectedCardID == nil {
		return
	}
	i := models.FindCard(*hand, *s.SelectedCardID)
	if i >= 0 {
		*drafted = append(*drafted, (*hand)[i])
		*hand = append(append([]models.Card{}, (*hand)[:i]...), (*hand)[i+1:]...)
	}
	s.SelectedCardID = nil
	s.PickStatus = models.PickStatusPicked
}

// rotateHands permutes the chosen hand across seats in seat-number order.
// dir follows the pass-direction convention above.
func rotateHands(seats []*models.Seat, dir int, hand func(*models.Seat) *[]models.Card) {
	n := len(seats)
	if n < 2 {
		return
	}
	old := make([][]models.Card, n)
	for i, s := range seats {
		old[i] = *hand(s)
	}
	for i, s := range seats {
		from := ((i-dir)%n + n) % n
		*hand(s) = old[from]
	}
}

func handsEmpty(seats []*models.Seat) bool {
	for _, s := range seats {
		if len(s.CurrentPack) > 0 {
			return false
		}
	}
	return true
}
