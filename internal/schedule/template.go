package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidWindow = errors.New("invalid working window")

// DayWindow is one weekday of a doctor's working template.
type DayWindow struct {
	Start      Clock
	End        Clock
	BreakStart Clock
	BreakEnd   Clock
	Working    bool
}

// DaySpec is the stored form of a DayWindow.
type DaySpec struct {
	Start      string  `json:"start"`
	End        string  `json:"end"`
	BreakStart *string `json:"break_start,omitempty"`
	BreakEnd   *string `json:"break_end,omitempty"`
	IsWorking  *bool   `json:"is_working,omitempty"`
}

// Template maps lowercase weekday names ("monday") to their spec.
type Template map[string]DaySpec

// ParseTemplate decodes a stored working-hours document. Empty input yields
// an empty template, which resolves every day to the default window.
func ParseTemplate(raw []byte) (Template, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Template{}, nil
	}

	var t Template
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return Template{}, fmt.Errorf("decode working hours: %w", err)
	}

	normalized := make(Template, len(t))
	for day, spec := range t {
		normalized[strings.ToLower(day)] = spec
	}
	return normalized, nil
}

// Day resolves the window for wd. Days absent from the template get def.
// A present but malformed day returns def together with the parse error so
// the caller can report it.
func (t Template) Day(wd time.Weekday, def DayWindow) (DayWindow, error) {
	spec, ok := t[strings.ToLower(wd.String())]
	if !ok {
		return def, nil
	}
	w, err := spec.window(def)
	if err != nil {
		return def, fmt.Errorf("%s: %w", strings.ToLower(wd.String()), err)
	}
	return w, nil
}

func (s DaySpec) window(def DayWindow) (DayWindow, error) {
	w := DayWindow{
		BreakStart: def.BreakStart,
		BreakEnd:   def.BreakEnd,
		Working:    true,
	}
	if s.IsWorking != nil {
		w.Working = *s.IsWorking
	}
	if !w.Working {
		return w, nil
	}

	var err error
	if w.Start, err = ParseClock(s.Start); err != nil {
		return DayWindow{}, err
	}
	if w.End, err = ParseClock(s.End); err != nil {
		return DayWindow{}, err
	}

	explicitBreak := s.BreakStart != nil || s.BreakEnd != nil
	if s.BreakStart != nil {
		if w.BreakStart, err = ParseClock(*s.BreakStart); err != nil {
			return DayWindow{}, err
		}
	}
	if s.BreakEnd != nil {
		if w.BreakEnd, err = ParseClock(*s.BreakEnd); err != nil {
			return DayWindow{}, err
		}
	}

	if w.Start >= w.End {
		return DayWindow{}, fmt.Errorf("%w: start %s not before end %s", ErrInvalidWindow, w.Start, w.End)
	}
	if explicitBreak && !(w.Start < w.BreakStart && w.BreakStart <= w.BreakEnd && w.BreakEnd < w.End) {
		return DayWindow{}, fmt.Errorf("%w: break %s-%s outside %s-%s", ErrInvalidWindow, w.BreakStart, w.BreakEnd, w.Start, w.End)
	}
	return w, nil
}

// Spec converts a window back into its stored form.
func (w DayWindow) Spec() DaySpec {
	working := w.Working
	bs, be := w.BreakStart.String(), w.BreakEnd.String()
	return DaySpec{
		Start:      w.Start.String(),
		End:        w.End.String(),
		BreakStart: &bs,
		BreakEnd:   &be,
		IsWorking:  &working,
	}
}
