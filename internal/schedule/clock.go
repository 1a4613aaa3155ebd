package schedule

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day, in minutes after midnight.
type Clock int

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On places c on the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(c)/60, int(c)%60, 0, 0, date.Location())
}
