package schedule

import (
	"time"
)

// Config holds the slot generation parameters.
type Config struct {
	SlotDuration       time.Duration
	Step               time.Duration
	Default            DayWindow
	LookaheadDays      int
	AlternativesPerDay int
	Location           *time.Location
}

// DefaultConfig returns 30 minute slots on a 15 minute grid inside a
// 09:00-17:00 day with a 12:00-13:00 break.
func DefaultConfig() Config {
	return Config{
		SlotDuration: 30 * time.Minute,
		Step:         15 * time.Minute,
		Default: DayWindow{
			Start:      MustClock("09:00"),
			End:        MustClock("17:00"),
			BreakStart: MustClock("12:00"),
			BreakEnd:   MustClock("13:00"),
			Working:    true,
		},
		LookaheadDays:      7,
		AlternativesPerDay: 5,
		Location:           time.UTC,
	}
}

// Loc returns the clinic location, UTC when unset.
func (c Config) Loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Slot is a candidate appointment interval.
type Slot struct {
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Start     time.Time `json:"datetime"`
}

// Interval is a half-open busy period [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// DayAlternatives groups the first free slots of one day.
type DayAlternatives struct {
	Date  string `json:"date"`
	Slots []Slot `json:"available_slots"`
}

// Day returns midnight of date's calendar day in the clinic location.
// The calendar fields of date are used as-is.
func (c Config) Day(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.Loc())
}

// Slots walks the working window of date in Step increments and returns every
// slot of SlotDuration that fits before the window end, does not touch the
// break and does not overlap a busy interval. Output is ascending.
func (c Config) Slots(w DayWindow, date time.Time, busy []Interval) []Slot {
	slots := make([]Slot, 0)
	if !w.Working || c.Step <= 0 || c.SlotDuration <= 0 {
		return slots
	}

	day := c.Day(date)
	end := w.End.On(day)
	breakWindow := Interval{Start: w.BreakStart.On(day), End: w.BreakEnd.On(day)}

	for cur := w.Start.On(day); cur.Before(end); cur = cur.Add(c.Step) {
		tod := ClockOf(cur)
		if tod >= w.BreakStart && tod < w.BreakEnd {
			continue
		}

		slotEnd := cur.Add(c.SlotDuration)
		if slotEnd.After(end) {
			continue
		}
		if breakWindow.Start.Before(breakWindow.End) && breakWindow.overlaps(cur, slotEnd) {
			continue
		}
		if overlapsAny(cur, slotEnd, busy) {
			continue
		}

		slots = append(slots, Slot{
			StartTime: tod.String(),
			EndTime:   ClockOf(slotEnd).String(),
			Start:     cur,
		})
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.overlaps(start, end) {
			return true
		}
	}
	return false
}

// Match finds the slot whose start time of day equals at's, to the minute.
// at must already be in the clinic location.
func Match(slots []Slot, at time.Time) (Slot, bool) {
	want := ClockOf(at).String()
	for _, s := range slots {
		if s.StartTime == want {
			return s, true
		}
	}
	return Slot{}, false
}

// Closest returns the slot whose start is numerically nearest to preferred.
// The earliest of equally near slots wins.
func Closest(slots []Slot, preferred Clock) (Slot, bool) {
	if len(slots) == 0 {
		return Slot{}, false
	}
	best := slots[0]
	bestDist := distance(ClockOf(best.Start), preferred)
	for _, s := range slots[1:] {
		if d := distance(ClockOf(s.Start), preferred); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, true
}

func distance(a, b Clock) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Truncate caps slots at n entries.
func Truncate(slots []Slot, n int) []Slot {
	if n <= 0 || len(slots) <= n {
		return slots
	}
	return slots[:n]
}
