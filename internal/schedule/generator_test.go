package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2030-01-07 is a Monday.
var monday = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)

func startTimes(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.StartTime)
	}
	return out
}

func TestSlotsDefaultMonday(t *testing.T) {
	cfg := DefaultConfig()
	slots := cfg.Slots(cfg.Default, monday, nil)

	starts := startTimes(slots)
	assert.Contains(t, starts, "09:00")
	assert.NotContains(t, starts, "12:00")
	assert.Equal(t, "16:30", starts[len(starts)-1])
	assert.NotContains(t, starts, "16:45")
	assert.Len(t, slots, 26)
}

func TestSlotsNeverTouchBreak(t *testing.T) {
	cfg := DefaultConfig()
	breakStart := time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
	breakEnd := time.Date(2030, 1, 7, 13, 0, 0, 0, time.UTC)

	for _, s := range cfg.Slots(cfg.Default, monday, nil) {
		end := s.Start.Add(cfg.SlotDuration)
		intersects := s.Start.Before(breakEnd) && end.After(breakStart)
		assert.False(t, intersects, "slot %s-%s intersects the break", s.StartTime, s.EndTime)
	}
}

func TestSlotsDurationAndGrid(t *testing.T) {
	cfg := DefaultConfig()
	windowStart := cfg.Default.Start.On(monday)

	for _, s := range cfg.Slots(cfg.Default, monday, nil) {
		end, err := ParseClock(s.EndTime)
		require.NoError(t, err)
		assert.Equal(t, int(cfg.SlotDuration/time.Minute), int(end-ClockOf(s.Start)))
		assert.Zero(t, s.Start.Sub(windowStart)%cfg.Step)
	}
}

func TestSlotsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	busy := []Interval{{Start: time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC), End: time.Date(2030, 1, 7, 10, 30, 0, 0, time.UTC)}}

	assert.Equal(t, cfg.Slots(cfg.Default, monday, busy), cfg.Slots(cfg.Default, monday, busy))
}

func TestSlotsBusyAtNineBlocksNineFifteen(t *testing.T) {
	cfg := DefaultConfig()
	nine := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: nine, End: nine.Add(cfg.SlotDuration)}}

	starts := startTimes(cfg.Slots(cfg.Default, monday, busy))
	assert.NotContains(t, starts, "09:00")
	assert.NotContains(t, starts, "09:15")
	assert.Equal(t, "09:30", starts[0])
}

func TestSlotsNonWorkingDay(t *testing.T) {
	cfg := DefaultConfig()
	w := cfg.Default
	w.Working = false

	slots := cfg.Slots(w, monday, nil)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlotsUseClinicLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	cfg := DefaultConfig()
	cfg.Location = loc

	slots := cfg.Slots(cfg.Default, monday, nil)
	require.NotEmpty(t, slots)
	assert.Equal(t, time.Date(2030, 1, 7, 9, 0, 0, 0, loc), slots[0].Start)
	assert.Equal(t, time.Date(2030, 1, 7, 6, 0, 0, 0, time.UTC), slots[0].Start.UTC())
}

func TestMatchIsExactToTheMinute(t *testing.T) {
	cfg := DefaultConfig()
	slots := cfg.Slots(cfg.Default, monday, nil)

	s, ok := Match(slots, time.Date(2030, 1, 7, 9, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "09:30", s.StartTime)

	_, ok = Match(slots, time.Date(2030, 1, 7, 9, 31, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestClosest(t *testing.T) {
	cfg := DefaultConfig()
	slots := cfg.Slots(cfg.Default, monday, nil)

	s, ok := Closest(slots, MustClock("12:05"))
	require.True(t, ok)
	assert.Equal(t, "11:30", s.StartTime)

	// 11:30 and 13:00 are both 45 minutes away; the earlier one wins.
	s, ok = Closest(slots, MustClock("12:15"))
	require.True(t, ok)
	assert.Equal(t, "11:30", s.StartTime)

	s, ok = Closest(slots, MustClock("12:45"))
	require.True(t, ok)
	assert.Equal(t, "13:00", s.StartTime)

	_, ok = Closest(nil, MustClock("10:00"))
	assert.False(t, ok)
}

func TestTruncate(t *testing.T) {
	cfg := DefaultConfig()
	slots := cfg.Slots(cfg.Default, monday, nil)

	assert.Len(t, Truncate(slots, 5), 5)
	assert.Len(t, Truncate(slots[:2], 5), 2)
	assert.Len(t, Truncate(slots, 0), len(slots))
}
