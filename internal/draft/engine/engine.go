// Package engine holds the pure draft state transitions. Nothing here does
// I/O or reads the clock; callers load the aggregate, apply one or more
// transitions, and persist the result under a state-version compare-and-set.
package engine

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/twinsuns/draftroom/internal/models"
)

// MinSeats is the smallest table a draft can start with.
const MinSeats = 2

// MaxSeats is the largest table a draft can hold.
const MaxSeats = 8

// JoinSeat adds a seat for the principal at the lowest free seat number.
func JoinSeat(d *models.Draft, principal string) (*models.Seat, error) {
	if d.Status != models.DraftStatusWaiting {
		return nil, NewError(CodeDraftLocked, "draft %s is not accepting players", d.ShareID)
	}
	if d.SeatByPrincipal(principal) != nil {
		return nil, NewError(CodeAlreadyJoined, "principal already holds a seat")
	}
	if len(d.Seats) >= d.MaxSeats {
		return nil, NewError(CodeDraftFull, "all %d seats are taken", d.MaxSeats)
	}

	seat := &models.Seat{
		ID:         uuid.New(),
		DraftID:    d.ID,
		SeatNumber: lowestFreeSeatNumber(d),
		Principal:  principal,
		PickStatus: models.PickStatusIdle,
	}
	d.Seats = append(d.Seats, seat)
	return seat, nil
}

// AddBot adds a bot seat with principal "bot:<ordinal>".
func AddBot(d *models.Draft, ordinal int) (*models.Seat, error) {
	seat, err := JoinSeat(d, models.BotPrincipal(ordinal))
	if err != nil {
		return nil, err
	}
	seat.IsBot = true
	return seat, nil
}

// Leave removes the principal's seat. Only valid while waiting; the host
// cannot leave its own draft, it cancels instead.
func Leave(d *models.Draft, principal string) error {
	if d.Status != models.DraftStatusWaiting {
		return NewError(CodeDraftLocked, "cannot leave a draft in status %s", d.Status)
	}
	seat := d.SeatByPrincipal(principal)
	if seat == nil {
		return NewError(CodeNotSeatOwner, "principal holds no seat")
	}
	if seat.ID == d.HostSeatID {
		return NewError(CodeDraftLocked, "host cannot leave; cancel the draft instead")
	}
	for i, s := range d.Seats {
		if s.ID == seat.ID {
			d.Seats = append(d.Seats[:i], d.Seats[i+1:]...)
			break
		}
	}
	return nil
}

// RandomizeSeats uniformly permutes seat numbers across the existing seats.
// Seats keep their identity and principal; only the table position moves.
func RandomizeSeats(d *models.Draft, rng *rand.Rand) error {
	if d.Status != models.DraftStatusWaiting {
		return NewError(CodeDraftLocked, "cannot randomize a draft in status %s", d.Status)
	}
	numbers := make([]int, len(d.Seats))
	for i, s := range d.Seats {
		numbers[i] = s.SeatNumber
	}
	rng.Shuffle(len(numbers), func(i, j int) {
		numbers[i], numbers[j] = numbers[j], numbers[i]
	})
	for i, s := range d.Seats {
		s.SeatNumber = numbers[i]
	}
	return nil
}

// SettingsPatch is a partial update over the host-tunable settings.
type SettingsPatch struct {
	PackSize               *int  `json:"pack_size,omitempty"`
	RoundTimerEnabled      *bool `json:"round_timer_enabled,omitempty"`
	RoundTimerSeconds      *int  `json:"round_timer_seconds,omitempty"`
	LastPickerTimerEnabled *bool `json:"last_picker_timer_enabled,omitempty"`
	LastPickerTimerSeconds *int  `json:"last_picker_timer_seconds,omitempty"`
}

// UpdateSettings applies a partial settings update. Only valid while waiting.
func UpdateSettings(d *models.Draft, patch SettingsPatch) error {
	if d.Status != models.DraftStatusWaiting {
		return NewError(CodeDraftLocked, "cannot change settings in status %s", d.Status)
	}
	if patch.PackSize != nil {
		d.Settings.PackSize = *patch.PackSize
	}
	if patch.RoundTimerEnabled != nil {
		d.Settings.RoundTimerEnabled = *patch.RoundTimerEnabled
	}
	if patch.RoundTimerSeconds != nil {
		d.Settings.RoundTimerSeconds = *patch.RoundTimerSeconds
	}
	if patch.LastPickerTimerEnabled != nil {
		d.Settings.LastPickerTimerEnabled = *patch.LastPickerTimerEnabled
	}
	if patch.LastPickerTimerSeconds != nil {
		d.Settings.LastPickerTimerSeconds = *patch.LastPickerTimerSeconds
	}
	return nil
}

// Start transitions a waiting draft into the first leader round. pools must
// hold one SeatPool per seat, in seat-number order.
func Start(d *models.Draft, now time.Time, seed int64, pools []models.SeatPool) error {
	if d.Status != models.DraftStatusWaiting {
		return NewError(CodeDraftLocked, "draft already started")
	}
	if len(d.Seats) < MinSeats {
		return NewError(CodeTooFewPlayers, "need at least %d seats, have %d", MinSeats, len(d.Seats))
	}
	seats := d.SeatsInOrder()
	if len(pools) != len(seats) {
		return NewError(CodeStorageUnavailable, "pack generator returned %d pools for %d seats", len(pools), len(seats))
	}

	for i, s := range seats {
		pool := pools[i]
		if len(pool.LeaderOfferings) > 0 {
			s.LeaderOffering = pool.LeaderOfferings[0]
			s.LeaderQueue = pool.LeaderOfferings[1:]
		}
		s.PackQueue = pool.Packs
		s.SelectedCardID = nil
	}

	d.Seed = seed
	d.Status = models.DraftStatusLeaderDraft
	d.Phase = models.PhaseState{Leader: &models.LeaderPhase{LeaderRound: 1}}
	d.StartedAt = &now
	openPickWindow(d, now)
	return nil
}

// Select stages (or with a nil card id, unstages) a pick for the seat. It
// never advances the round; commit happens once every seat has selected.
func Select(d *models.Draft, seatID uuid.UUID, cardID *string) error {
	if !d.Active() {
		return NewError(CodeDraftLocked, "draft is not picking")
	}
	seat := d.SeatByID(seatID)
	if seat == nil {
		return NewError(CodeNotSeatOwner, "unknown seat")
	}
	if seat.PickStatus != models.PickStatusPicking && seat.PickStatus != models.PickStatusSelected {
		return NewError(CodeStateChanged, "seat is not in a pick window")
	}

	if cardID == nil {
		seat.SelectedCardID = nil
		seat.PickStatus = models.PickStatusPicking
		return nil
	}
	if *cardID == "" {
		return NewError(CodeInvalidSelection, "empty card id")
	}
	hand := seat.Hand(d.Status)
	if models.FindCard(hand, *cardID) < 0 {
		// Most likely a stale click that raced a rotation; the client
		// reconciles from a fresh state fetch.
		return NewError(CodeStateChanged, "card %s is not in the seat's hand", *cardID)
	}
	id := *cardID
	seat.SelectedCardID = &id
	seat.PickStatus = models.PickStatusSelected
	return nil
}

// ForceRandom stages a uniformly random pick for a seat that has none yet.
// Used by the timeout enforcer; a seat that already selected is left alone.
func ForceRandom(d *models.Draft, seatID uuid.UUID, rng *rand.Rand) error {
	if !d.Active() {
		return NewError(CodeDraftLocked, "draft is not picking")
	}
	seat := d.SeatByID(seatID)
	if seat == nil {
		return NewError(CodeNotSeatOwner, "unknown seat")
	}
	if seat.PickStatus != models.PickStatusPicking || seat.SelectedCardID != nil {
		return nil
	}
	hand := seat.Hand(d.Status)
	if len(hand) == 0 {
		seat.PickStatus = models.PickStatusIdle
		return nil
	}
	id := hand[rng.Intn(len(hand))].ID
	seat.SelectedCardID = &id
	seat.PickStatus = models.PickStatusSelected
	return nil
}

// AllSeatsSelected reports whether the round is ready to commit: no seat is
// still picking and at least one seat has a staged selection.
func AllSeatsSelected(d *models.Draft) bool {
	selected := 0
	for _, s := range d.Seats {
		switch s.PickStatus {
		case models.PickStatusPicking:
			return false
		case models.PickStatusSelected:
			selected++
		}
	}
	return selected > 0
}

// CommitRound atomically moves every staged pick into the seat's drafted
// list, rotates the residual hands and opens the next pick window (or
// transitions the phase). Precondition: AllSeatsSelected.
func CommitRound(d *models.Draft, now time.Time) error {
	if !d.Active() {
		return NewError(CodeDraftLocked, "draft is not picking")
	}
	if !AllSeatsSelected(d) {
		return NewError(CodeStateChanged, "round is not ready to commit")
	}

	switch d.Status {
	case models.DraftStatusLeaderDraft:
		commitLeaderRound(d, now)
	case models.DraftStatusPackDraft:
		commitPackRound(d, now)
	}
	return nil
}

// MarkLastPicker records the last-picker timer start the first time exactly
// one seat remains picking. Returns true when the state changed.
func MarkLastPicker(d *models.Draft, now time.Time) bool {
	if !d.Active() || d.Phase.LastPickerStartedAt() != nil {
		return false
	}
	if len(d.PickingSeats()) != 1 {
		return false
	}
	d.Phase.SetLastPickerStartedAt(&now)
	return true
}

// Pause freezes the pick timers.
func Pause(d *models.Draft, now time.Time) error {
	if !d.Active() {
		return NewError(CodeDraftLocked, "cannot pause a draft in status %s", d.Status)
	}
	if d.Paused {
		return NewError(CodeDraftLocked, "draft is already paused")
	}
	d.Paused = true
	d.PausedAt = &now
	return nil
}

// Resume unfreezes the pick timers, folding the pause interval into the
// accumulated deduction.
func Resume(d *models.Draft, now time.Time) error {
	if !d.Paused || d.PausedAt == nil {
		return NewError(CodeDraftLocked, "draft is not paused")
	}
	paused := now.Sub(*d.PausedAt)
	d.PausedAccumulated += paused
	// The last-picker window is measured wall-clock from its start, so the
	// pause is folded in by shifting the start forward.
	if lp := d.Phase.LastPickerStartedAt(); lp != nil {
		shifted := lp.Add(paused)
		d.Phase.SetLastPickerStartedAt(&shifted)
	}
	d.Paused = false
	d.PausedAt = nil
	return nil
}

// Cancel terminates the draft from any non-terminal state.
func Cancel(d *models.Draft, now time.Time) error {
	if d.Terminal() {
		return NewError(CodeDraftLocked, "draft is already %s", d.Status)
	}
	d.Status = models.DraftStatusCancelled
	d.Phase = models.PhaseState{}
	d.CompletedAt = &now
	d.PickStartedAt = nil
	for _, s := range d.Seats {
		s.PickStatus = models.PickStatusIdle
		s.SelectedCardID = nil
	}
	return nil
}

func lowestFreeSeatNumber(d *models.Draft) int {
	taken := make(map[int]bool, len(d.Seats))
	for _, s := range d.Seats {
		taken[s.SeatNumber] = true
	}
	for n := 1; ; n++ {
		if !taken[n] {
			return n
		}
	}
}
