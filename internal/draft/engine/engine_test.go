package engine

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinsuns/draftroom/internal/models"
)

func card(id string) models.Card {
	return models.Card{ID: id, Name: id}
}

func cards(ids ...string) []models.Card {
	out := make([]models.Card, len(ids))
	for i, id := range ids {
		out[i] = card(id)
	}
	return out
}

func newWaitingDraft(t *testing.T, humans int) *models.Draft {
	t.Helper()
	d := &models.Draft{
		ID:       uuid.New(),
		ShareID:  "test1234",
		SetCode:  "TWI",
		MaxSeats: MaxSeats,
		Status:   models.DraftStatusWaiting,
		Settings: models.DefaultDraftSettings(),
	}
	host, err := JoinSeat(d, "host")
	require.NoError(t, err)
	d.HostSeatID = host.ID
	for i := 2; i <= humans; i++ {
		_, err := JoinSeat(d, fmt.Sprintf("player-%d", i))
		require.NoError(t, err)
	}
	return d
}

// leaderPools builds one single-leader offering per round so tests can walk
// through the leader phase with forced choices.
func leaderPools(seatCount int, packs [][][]string) []models.SeatPool {
	pools := make([]models.SeatPool, seatCount)
	for i := range pools {
		offerings := make([][]models.Card, models.LeaderRounds)
		for r := range offerings {
			offerings[r] = cards(fmt.Sprintf("leader-%d-%d", i+1, r+1))
		}
		pools[i].LeaderOfferings = offerings
		for _, p := range packs[i] {
			pools[i].Packs = append(pools[i].Packs, cards(p...))
		}
	}
	return pools
}

func selectAll(t *testing.T, d *models.Draft) {
	t.Helper()
	for _, s := range d.Seats {
		if s.PickStatus != models.PickStatusPicking {
			continue
		}
		hand := s.Hand(d.Status)
		require.NotEmpty(t, hand)
		id := hand[0].ID
		require.NoError(t, Select(d, s.ID, &id))
	}
}

// advanceToPackDraft walks every leader round with forced single choices.
func advanceToPackDraft(t *testing.T, d *models.Draft, now time.Time) {
	t.Helper()
	for d.Status == models.DraftStatusLeaderDraft {
		selectAll(t, d)
		require.NoError(t, CommitRound(d, now))
	}
	require.Equal(t, models.DraftStatusPackDraft, d.Status)
}

func seatByNumber(d *models.Draft, n int) *models.Seat {
	for _, s := range d.Seats {
		if s.SeatNumber == n {
			return s
		}
	}
	return nil
}

func stage(t *testing.T, d *models.Draft, seatNumber int, cardID string) {
	t.Helper()
	s := seatByNumber(d, seatNumber)
	require.NotNil(t, s)
	require.NoError(t, Select(d, s.ID, &cardID))
}

func TestJoinSeat(t *testing.T) {
	d := newWaitingDraft(t, 1)
	d.MaxSeats = 3

	s2, err := JoinSeat(d, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, s2.SeatNumber)

	_, err = JoinSeat(d, "alice")
	assert.True(t, IsCode(err, CodeAlreadyJoined))

	_, err = JoinSeat(d, "bob")
	require.NoError(t, err)
	_, err = JoinSeat(d, "carol")
	assert.True(t, IsCode(err, CodeDraftFull))

	require.NoError(t, Leave(d, "alice"))
	s4, err := JoinSeat(d, "carol")
	require.NoError(t, err)
	assert.Equal(t, 2, s4.SeatNumber, "lowest free seat number is reused")
}

func TestJoinSeatLocked(t *testing.T) {
	d := newWaitingDraft(t, 2)
	d.Status = models.DraftStatusLeaderDraft
	_, err := JoinSeat(d, "late")
	assert.True(t, IsCode(err, CodeDraftLocked))
}

func TestAddBot(t *testing.T) {
	d := newWaitingDraft(t, 1)
	bot, err := AddBot(d, 1)
	require.NoError(t, err)
	assert.True(t, bot.IsBot)
	assert.Equal(t, "bot:1", bot.Principal)
}

func TestLeaveHost(t *testing.T) {
	d := newWaitingDraft(t, 2)
	err := Leave(d, "host")
	assert.True(t, IsCode(err, CodeDraftLocked))
}

func TestRandomizeSeats(t *testing.T) {
	d := newWaitingDraft(t, 4)
	byID := make(map[uuid.UUID]string)
	for _, s := range d.Seats {
		byID[s.ID] = s.Principal
	}

	rng := rand.New(rand.NewSource(7))
	require.NoError(t, RandomizeSeats(d, rng))

	seen := make(map[int]bool)
	for _, s := range d.Seats {
		assert.False(t, seen[s.SeatNumber], "duplicate seat number %d", s.SeatNumber)
		seen[s.SeatNumber] = true
		assert.GreaterOrEqual(t, s.SeatNumber, 1)
		assert.LessOrEqual(t, s.SeatNumber, len(d.Seats))
		assert.Equal(t, byID[s.ID], s.Principal, "principal stays with its seat identity")
	}
}

func TestUpdateSettings(t *testing.T) {
	d := newWaitingDraft(t, 2)
	size := 10
	enabled := false
	require.NoError(t, UpdateSettings(d, SettingsPatch{PackSize: &size, RoundTimerEnabled: &enabled}))
	assert.Equal(t, 10, d.Settings.PackSize)
	assert.False(t, d.Settings.RoundTimerEnabled)
	assert.True(t, d.Settings.LastPickerTimerEnabled, "untouched fields keep their value")

	d.Status = models.DraftStatusPackDraft
	err := UpdateSettings(d, SettingsPatch{PackSize: &size})
	assert.True(t, IsCode(err, CodeDraftLocked))
}

func TestStartTooFewPlayers(t *testing.T) {
	d := newWaitingDraft(t, 1)
	err := Start(d, time.Now(), 1, []models.SeatPool{{}})
	assert.True(t, IsCode(err, CodeTooFewPlayers))
}

func TestStartOpensLeaderDraft(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	pools := leaderPools(2, [][][]string{{{"A", "B", "C"}}, {{"D", "E", "F"}}})
	require.NoError(t, Start(d, now, 42, pools))

	assert.Equal(t, models.DraftStatusLeaderDraft, d.Status)
	require.NotNil(t, d.Phase.Leader)
	assert.Equal(t, 1, d.Phase.Leader.LeaderRound)
	assert.Equal(t, int64(42), d.Seed)
	require.NotNil(t, d.PickStartedAt)
	for _, s := range d.Seats {
		assert.Equal(t, models.PickStatusPicking, s.PickStatus)
		assert.Len(t, s.LeaderOffering, 1)
		assert.Len(t, s.LeaderQueue, 2)
	}

	err := Start(d, now, 42, pools)
	assert.True(t, IsCode(err, CodeDraftLocked))
}

func TestSelectUnselectRoundTrip(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	require.NoError(t, Start(d, now, 1, leaderPools(2, [][][]string{{}, {}})))

	s := seatByNumber(d, 1)
	id := s.LeaderOffering[0].ID
	require.NoError(t, Select(d, s.ID, &id))
	assert.Equal(t, models.PickStatusSelected, s.PickStatus)

	require.NoError(t, Select(d, s.ID, nil))
	assert.Equal(t, models.PickStatusPicking, s.PickStatus)
	assert.Nil(t, s.SelectedCardID)

	require.NoError(t, Select(d, s.ID, &id))
	assert.Equal(t, models.PickStatusSelected, s.PickStatus)
	require.NotNil(t, s.SelectedCardID)
	assert.Equal(t, id, *s.SelectedCardID)
}

func TestSelectErrors(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	require.NoError(t, Start(d, now, 1, leaderPools(2, [][][]string{{}, {}})))
	s := seatByNumber(d, 1)

	stale := "not-in-hand"
	err := Select(d, s.ID, &stale)
	assert.True(t, IsCode(err, CodeStateChanged))

	empty := ""
	err = Select(d, s.ID, &empty)
	assert.True(t, IsCode(err, CodeInvalidSelection))

	err = Select(d, uuid.New(), &stale)
	assert.True(t, IsCode(err, CodeNotSeatOwner))
}

func TestCommitNotReady(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	require.NoError(t, Start(d, now, 1, leaderPools(2, [][][]string{{}, {}})))
	err := CommitRound(d, now)
	assert.True(t, IsCode(err, CodeStateChanged))
}

func TestLeaderDraftToPackDraftTransition(t *testing.T) {
	d := newWaitingDraft(t, 4)
	now := time.Now()
	packSize := d.Settings.PackSize
	packs := make([][][]string, 4)
	for i := range packs {
		for p := 0; p < models.PackRounds; p++ {
			var ids []string
			for c := 0; c < packSize; c++ {
				ids = append(ids, fmt.Sprintf("s%d-p%d-c%d", i+1, p+1, c+1))
			}
			packs[i] = append(packs[i], ids)
		}
	}
	require.NoError(t, Start(d, now, 1, leaderPools(4, packs)))

	advanceToPackDraft(t, d, now)

	require.NotNil(t, d.Phase.Pack)
	assert.Equal(t, 1, d.Phase.Pack.PackNumber)
	assert.Equal(t, 1, d.Phase.Pack.PickInPack)
	for _, s := range d.Seats {
		assert.Len(t, s.DraftedLeaders, models.LeaderRounds)
		assert.Len(t, s.CurrentPack, packSize)
		assert.Equal(t, models.PickStatusPicking, s.PickStatus)
	}
}

// Leader offerings pass right after rounds 1 and 2; the round-3 residual
// stays where it is and is discarded at the phase transition.
func TestLeaderOfferingRotation(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	pools := []models.SeatPool{
		{LeaderOfferings: [][]models.Card{cards("A1", "A2"), cards("A3"), nil}},
		{LeaderOfferings: [][]models.Card{cards("B1", "B2"), cards("B3"), nil}},
	}
	require.NoError(t, Start(d, now, 1, pools))

	stage(t, d, 1, "A1")
	stage(t, d, 2, "B1")
	require.NoError(t, CommitRound(d, now))

	// Round 2: seat 1 holds seat 2's residual plus its own round-2 offering.
	assert.Equal(t, 2, d.Phase.Leader.LeaderRound)
	assert.Equal(t, []string{"B2", "A3"}, models.CardIDs(seatByNumber(d, 1).LeaderOffering))
	assert.Equal(t, []string{"A2", "B3"}, models.CardIDs(seatByNumber(d, 2).LeaderOffering))

	stage(t, d, 1, "B2")
	stage(t, d, 2, "A2")
	require.NoError(t, CommitRound(d, now))

	// Round 3: residuals rotated again, no fresh offering.
	assert.Equal(t, 3, d.Phase.Leader.LeaderRound)
	assert.Equal(t, []string{"B3"}, models.CardIDs(seatByNumber(d, 1).LeaderOffering))
	assert.Equal(t, []string{"A3"}, models.CardIDs(seatByNumber(d, 2).LeaderOffering))

	stage(t, d, 1, "B3")
	stage(t, d, 2, "A3")
	require.NoError(t, CommitRound(d, now))

	assert.Equal(t, []string{"A1", "B2", "B3"}, models.CardIDs(seatByNumber(d, 1).DraftedLeaders))
	assert.Equal(t, []string{"B1", "A2", "A3"}, models.CardIDs(seatByNumber(d, 2).DraftedLeaders))
}

// Boundary scenario: 2-seat mini-draft over two packs of three cards.
func TestTwoSeatMiniDraft(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	packs := [][][]string{
		{{"A", "B", "C"}, {"G", "H", "I"}},
		{{"D", "E", "F"}, {"J", "K", "L"}},
	}
	require.NoError(t, Start(d, now, 1, leaderPools(2, packs)))
	advanceToPackDraft(t, d, now)

	s1, s2 := seatByNumber(d, 1), seatByNumber(d, 2)
	assert.Equal(t, []string{"A", "B", "C"}, models.CardIDs(s1.CurrentPack))
	assert.Equal(t, []string{"D", "E", "F"}, models.CardIDs(s2.CurrentPack))

	stage(t, d, 1, "A")
	stage(t, d, 2, "D")
	require.NoError(t, CommitRound(d, now))

	// Pack 1 passes LEFT: seat 1 now holds seat 2's residual.
	assert.Equal(t, []string{"E", "F"}, models.CardIDs(s1.CurrentPack))
	assert.Equal(t, []string{"B", "C"}, models.CardIDs(s2.CurrentPack))
	assert.Equal(t, 2, d.Phase.Pack.PickInPack)

	stage(t, d, 1, "F")
	stage(t, d, 2, "B")
	require.NoError(t, CommitRound(d, now))
	assert.Equal(t, []string{"C"}, models.CardIDs(s1.CurrentPack))
	assert.Equal(t, []string{"E"}, models.CardIDs(s2.CurrentPack))

	stage(t, d, 1, "C")
	stage(t, d, 2, "E")
	require.NoError(t, CommitRound(d, now))

	assert.Equal(t, []string{"A", "F", "C"}, models.CardIDs(s1.DraftedCards))
	assert.Equal(t, []string{"D", "B", "E"}, models.CardIDs(s2.DraftedCards))

	// Pack 2 opened.
	assert.Equal(t, 2, d.Phase.Pack.PackNumber)
	assert.Equal(t, 1, d.Phase.Pack.PickInPack)
	assert.Equal(t, []string{"G", "H", "I"}, models.CardIDs(s1.CurrentPack))

	stage(t, d, 1, "G")
	stage(t, d, 2, "J")
	require.NoError(t, CommitRound(d, now))

	// Pack 2 passes RIGHT: seat 2 now holds seat 1's residual.
	assert.Equal(t, []string{"K", "L"}, models.CardIDs(s1.CurrentPack))
	assert.Equal(t, []string{"H", "I"}, models.CardIDs(s2.CurrentPack))

	for d.Status == models.DraftStatusPackDraft {
		selectAll(t, d)
		require.NoError(t, CommitRound(d, now))
	}
	assert.Equal(t, models.DraftStatusCompleted, d.Status)
	require.NotNil(t, d.CompletedAt)
	assert.Len(t, s1.DraftedCards, 6)
	assert.Len(t, s2.DraftedCards, 6)
}

// Rotation parity with three seats: after pack p's first pick the residual
// at seat k came from seat k+1 (LEFT, odd p).
func TestRotationParityThreeSeats(t *testing.T) {
	d := newWaitingDraft(t, 3)
	now := time.Now()
	packs := [][][]string{
		{{"A1", "A2", "A3"}},
		{{"B1", "B2", "B3"}},
		{{"C1", "C2", "C3"}},
	}
	require.NoError(t, Start(d, now, 1, leaderPools(3, packs)))
	advanceToPackDraft(t, d, now)

	stage(t, d, 1, "A1")
	stage(t, d, 2, "B1")
	stage(t, d, 3, "C1")
	require.NoError(t, CommitRound(d, now))

	assert.Equal(t, []string{"B2", "B3"}, models.CardIDs(seatByNumber(d, 1).CurrentPack))
	assert.Equal(t, []string{"C2", "C3"}, models.CardIDs(seatByNumber(d, 2).CurrentPack))
	assert.Equal(t, []string{"A2", "A3"}, models.CardIDs(seatByNumber(d, 3).CurrentPack))
}

// Conservation: every generated card is in exactly one hand or drafted list.
func TestPackConservation(t *testing.T) {
	d := newWaitingDraft(t, 3)
	now := time.Now()
	packs := [][][]string{
		{{"A1", "A2", "A3"}, {"A4", "A5", "A6"}},
		{{"B1", "B2", "B3"}, {"B4", "B5", "B6"}},
		{{"C1", "C2", "C3"}, {"C4", "C5", "C6"}},
	}
	require.NoError(t, Start(d, now, 1, leaderPools(3, packs)))
	advanceToPackDraft(t, d, now)

	want := make(map[string]int)
	for _, seatPacks := range packs {
		for _, p := range seatPacks {
			for _, id := range p {
				want[id]++
			}
		}
	}

	for d.Status == models.DraftStatusPackDraft {
		got := make(map[string]int)
		for _, s := range d.Seats {
			for _, c := range s.CurrentPack {
				got[c.ID]++
			}
			for _, c := range s.DraftedCards {
				got[c.ID]++
			}
			for _, p := range s.PackQueue {
				for _, c := range p {
					got[c.ID]++
				}
			}
		}
		assert.Equal(t, want, got)

		selectAll(t, d)
		require.NoError(t, CommitRound(d, now))
	}
}

func TestForceRandom(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	require.NoError(t, Start(d, now, 1, leaderPools(2, [][][]string{{}, {}})))
	rng := rand.New(rand.NewSource(99))

	s1 := seatByNumber(d, 1)
	require.NoError(t, ForceRandom(d, s1.ID, rng))
	assert.Equal(t, models.PickStatusSelected, s1.PickStatus)
	require.NotNil(t, s1.SelectedCardID)
	assert.Contains(t, models.CardIDs(s1.LeaderOffering), *s1.SelectedCardID)

	// A seat that already selected is left alone.
	s2 := seatByNumber(d, 2)
	id := s2.LeaderOffering[0].ID
	require.NoError(t, Select(d, s2.ID, &id))
	require.NoError(t, ForceRandom(d, s2.ID, rng))
	assert.Equal(t, id, *s2.SelectedCardID)
}

func TestMarkLastPicker(t *testing.T) {
	d := newWaitingDraft(t, 3)
	now := time.Now()
	require.NoError(t, Start(d, now, 1, leaderPools(3, [][][]string{{}, {}, {}})))

	assert.False(t, MarkLastPicker(d, now), "three seats still picking")

	for _, n := range []int{1, 2} {
		s := seatByNumber(d, n)
		id := s.LeaderOffering[0].ID
		require.NoError(t, Select(d, s.ID, &id))
	}
	assert.True(t, MarkLastPicker(d, now))
	require.NotNil(t, d.Phase.LastPickerStartedAt())
	assert.False(t, MarkLastPicker(d, now), "only the first observation writes")
}

func TestPauseResumeAccounting(t *testing.T) {
	d := newWaitingDraft(t, 2)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Start(d, start, 1, leaderPools(2, [][][]string{{}, {}})))

	require.NoError(t, Pause(d, start.Add(10*time.Second)))
	assert.True(t, IsCode(Pause(d, start.Add(11*time.Second)), CodeDraftLocked))
	require.NoError(t, Resume(d, start.Add(25*time.Second)))

	require.NoError(t, Pause(d, start.Add(40*time.Second)))
	require.NoError(t, Resume(d, start.Add(45*time.Second)))

	assert.False(t, d.Paused)
	assert.Nil(t, d.PausedAt)
	assert.Equal(t, 20*time.Second, d.PausedAccumulated)
	assert.Equal(t, 40*time.Second, d.PickElapsed(start.Add(60*time.Second)))
}

func TestPickElapsedFrozenWhilePaused(t *testing.T) {
	d := newWaitingDraft(t, 2)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Start(d, start, 1, leaderPools(2, [][][]string{{}, {}})))
	require.NoError(t, Pause(d, start.Add(100*time.Second)))

	assert.Equal(t, 100*time.Second, d.PickElapsed(start.Add(110*time.Second)))
	assert.Equal(t, 100*time.Second, d.PickElapsed(start.Add(140*time.Second)))
}

func TestCancel(t *testing.T) {
	d := newWaitingDraft(t, 2)
	now := time.Now()
	require.NoError(t, Cancel(d, now))
	assert.Equal(t, models.DraftStatusCancelled, d.Status)
	err := Cancel(d, now)
	assert.True(t, IsCode(err, CodeDraftLocked))
}
