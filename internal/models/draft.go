package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DraftStatus defines the lifecycle status of a draft.
type DraftStatus string

const (
	DraftStatusWaiting     DraftStatus = "WAITING"
	DraftStatusLeaderDraft DraftStatus = "LEADER_DRAFT"
	DraftStatusPackDraft   DraftStatus = "PACK_DRAFT"
	DraftStatusCompleted   DraftStatus = "COMPLETED"
	DraftStatusCancelled   DraftStatus = "CANCELLED"
)

// LeaderRounds is the number of leader draft rounds every draft runs.
const LeaderRounds = 3

// PackRounds is the number of booster packs each seat opens.
const PackRounds = 3

// LeaderPhase is the phase state while status is LEADER_DRAFT.
type LeaderPhase struct {
	LeaderRound         int        `json:"leader_round"`
	LastPickerStartedAt *time.Time `json:"last_picker_started_at,omitempty"`
}

// PackPhase is the phase state while status is PACK_DRAFT.
type PackPhase struct {
	PackNumber          int        `json:"pack_number"`
	PickInPack          int        `json:"pick_in_pack"`
	LastPickerStartedAt *time.Time `json:"last_picker_started_at,omitempty"`
}

// PhaseState is a union keyed by the draft status: exactly one branch is
// non-nil while the matching phase is active, both are nil otherwise.
type PhaseState struct {
	Leader *LeaderPhase `json:"leader,omitempty"`
	Pack   *PackPhase   `json:"pack,omitempty"`
}

// LastPickerStartedAt returns the last-picker timer start for whichever
// phase is active, or nil.
func (p *PhaseState) LastPickerStartedAt() *time.Time {
	switch {
	case p.Leader != nil:
		return p.Leader.LastPickerStartedAt
	case p.Pack != nil:
		return p.Pack.LastPickerStartedAt
	}
	return nil
}

// SetLastPickerStartedAt records the last-picker timer start on the active phase.
func (p *PhaseState) SetLastPickerStartedAt(t *time.Time) {
	switch {
	case p.Leader != nil:
		p.Leader.LastPickerStartedAt = t
	case p.Pack != nil:
		p.Pack.LastPickerStartedAt = t
	}
}

// DraftSettings holds the host-tunable knobs of a draft.
type DraftSettings struct {
	PackSize               int  `json:"pack_size"`
	RoundTimerEnabled      bool `json:"round_timer_enabled"`
	RoundTimerSeconds      int  `json:"round_timer_seconds"`
	LastPickerTimerEnabled bool `json:"last_picker_timer_enabled"`
	LastPickerTimerSeconds int  `json:"last_picker_timer_seconds"`
}

// DefaultDraftSettings returns the settings a draft is created with.
func DefaultDraftSettings() DraftSettings {
	return DraftSettings{
		PackSize:               14,
		RoundTimerEnabled:      true,
		RoundTimerSeconds:      120,
		LastPickerTimerEnabled: true,
		LastPickerTimerSeconds: 30,
	}
}

// Draft is the aggregate root: the draft row plus all of its seat rows.
// All mutations go through the engine and are persisted atomically under a
// state-version compare-and-set.
type Draft struct {
	ID                 uuid.UUID     `json:"id"`
	ShareID            string        `json:"share_id"`
	HostSeatID         uuid.UUID     `json:"host_seat_id"`
	SetCode            string        `json:"set_code"`
	MaxSeats           int           `json:"max_seats"`
	Status             DraftStatus   `json:"status"`
	Phase              PhaseState    `json:"phase"`
	Settings           DraftSettings `json:"settings"`
	Seed               int64         `json:"seed"`
	Paused             bool          `json:"paused"`
	PausedAt           *time.Time    `json:"paused_at,omitempty"`
	PausedAccumulated  time.Duration `json:"paused_accumulated"`
	StateVersion       int64         `json:"state_version"`
	BotProcessingSince *time.Time    `json:"bot_processing_since,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	StartedAt          *time.Time    `json:"started_at,omitempty"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	PickStartedAt      *time.Time    `json:"pick_started_at,omitempty"`

	Seats []*Seat `json:"seats"`
}

// Active reports whether the draft is in a picking phase.
func (d *Draft) Active() bool {
	return d.Status == DraftStatusLeaderDraft || d.Status == DraftStatusPackDraft
}

// Terminal reports whether the draft can no longer change.
func (d *Draft) Terminal() bool {
	return d.Status == DraftStatusCompleted || d.Status == DraftStatusCancelled
}

// SeatsInOrder returns the seats sorted by seat number.
func (d *Draft) SeatsInOrder() []*Seat {
	seats := make([]*Seat, len(d.Seats))
	copy(seats, d.Seats)
	sort.Slice(seats, func(i, j int) bool {
		return seats[i].SeatNumber < seats[j].SeatNumber
	})
	return seats
}

// SeatByID returns the seat with the given id, or nil.
func (d *Draft) SeatByID(id uuid.UUID) *Seat {
	for _, s := range d.Seats {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SeatByPrincipal returns the seat owned by the given principal, or nil.
func (d *Draft) SeatByPrincipal(principal string) *Seat {
	for _, s := range d.Seats {
		if s.Principal == principal {
			return s
		}
	}
	return nil
}

// HostSeat returns the host's seat, or nil if it has left.
func (d *Draft) HostSeat() *Seat {
	return d.SeatByID(d.HostSeatID)
}

// IsHost reports whether the principal owns the host seat.
func (d *Draft) IsHost(principal string) bool {
	host := d.HostSeat()
	return host != nil && host.Principal == principal
}

// PickingSeats returns the seats still in PICKING for the current window.
func (d *Draft) PickingSeats() []*Seat {
	var picking []*Seat
	for _, s := range d.Seats {
		if s.PickStatus == PickStatusPicking {
			picking = append(picking, s)
		}
	}
	return picking
}

// PickElapsed returns wall-clock time spent on the current pick window,
// excluding all paused intervals. The window start itself never shifts;
// pauses only grow the accumulated deduction.
func (d *Draft) PickElapsed(now time.Time) time.Duration {
	if d.PickStartedAt == nil {
		return 0
	}
	elapsed := now.Sub(*d.PickStartedAt) - d.PausedAccumulated
	if d.Paused && d.PausedAt != nil {
		elapsed -= now.Sub(*d.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Clone returns a deep copy of the draft and its seats.
func (d *Draft) Clone() *Draft {
	out := *d
	out.Phase = *d.Phase.Clone()
	out.PausedAt = cloneTime(d.PausedAt)
	out.BotProcessingSince = cloneTime(d.BotProcessingSince)
	out.StartedAt = cloneTime(d.StartedAt)
	out.CompletedAt = cloneTime(d.CompletedAt)
	out.PickStartedAt = cloneTime(d.PickStartedAt)
	out.Seats = make([]*Seat, len(d.Seats))
	for i, s := range d.Seats {
		out.Seats[i] = s.Clone()
	}
	return &out
}

// Clone returns a deep copy of the phase state.
func (p *PhaseState) Clone() *PhaseState {
	out := &PhaseState{}
	if p.Leader != nil {
		lp := *p.Leader
		lp.LastPickerStartedAt = cloneTime(p.Leader.LastPickerStartedAt)
		out.Leader = &lp
	}
	if p.Pack != nil {
		pp := *p.Pack
		pp.LastPickerStartedAt = cloneTime(p.Pack.LastPickerStartedAt)
		out.Pack = &pp
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
