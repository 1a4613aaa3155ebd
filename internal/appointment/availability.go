package appointment

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

// maxRangeDays bounds multi-day availability queries.
const maxRangeDays = 60

// calendar is a doctor resolved for slot computation: both identifiers and
// the weekly template, parsed once per workflow.
type calendar struct {
	ref  DoctorRef
	tmpl schedule.Template
}

// calendarFor parses d's working hours. A broken template never fails the
// request: every day falls back to the default window and the anomaly is
// logged.
func (s *Service) calendarFor(d *Doctor) calendar {
	cal := calendar{ref: d.Ref()}
	tmpl, err := schedule.ParseTemplate(d.WorkingHours)
	if err != nil {
		s.logger.Warn("unparsable working hours, using default template",
			zap.String("doctor_profile_id", cal.ref.ProfileID.String()),
			zap.Error(err),
		)
		return cal
	}
	cal.tmpl = tmpl
	return cal
}

// windowFor resolves the working window for a weekday.
func (s *Service) windowFor(cal calendar, wd time.Weekday) schedule.DayWindow {
	w, err := cal.tmpl.Day(wd, s.sched.Default)
	if err != nil {
		s.logger.Warn("malformed working day, using default window",
			zap.String("doctor_profile_id", cal.ref.ProfileID.String()),
			zap.String("weekday", wd.String()),
			zap.Error(err),
		)
	}
	return w
}

// slotsFor computes the free slots of cal on date. Appointment ignore (if
// set) does not count as busy, so an appointment can be moved within its own
// day.
func (s *Service) slotsFor(ctx context.Context, cal calendar, date time.Time, ignore uuid.UUID) ([]schedule.Slot, error) {
	started := time.Now()
	defer s.metrics.ObserveSlotQuery("day", started)

	day := s.sched.Day(date)
	w := s.windowFor(cal, day.Weekday())
	if !w.Working {
		return []schedule.Slot{}, nil
	}

	// reach back one slot so a booking straddling midnight still blocks
	existing, err := s.repo.ListActiveForDoctor(ctx, cal.ref.UserID, day.Add(-s.sched.SlotDuration), day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	busy := make([]schedule.Interval, 0, len(existing))
	for _, a := range existing {
		if a.ID == ignore {
			continue
		}
		busy = append(busy, a.Interval(s.sched.SlotDuration))
	}

	return s.sched.Slots(w, day, busy), nil
}

// AvailableSlots lists the free slots of a doctor profile on date.
func (s *Service) AvailableSlots(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) (slots []schedule.Slot, err error) {
	ctx, span := tracer.Start(ctx, "appointment.AvailableSlots")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("scheduling.doctor_profile_id", doctorProfileID.String()))

	_, cal, err := s.resolveDoctor(ctx, doctorProfileID)
	if err != nil {
		return nil, err
	}
	return s.slotsFor(ctx, cal, date, uuid.Nil)
}

// Availability returns the free slots for days days starting at from, keyed
// by ISO date. Days without a free slot are left out.
func (s *Service) Availability(ctx context.Context, doctorProfileID uuid.UUID, from time.Time, days int) (map[string][]schedule.Slot, error) {
	if days <= 0 {
		days = s.sched.LookaheadDays
	}
	if days > maxRangeDays {
		return nil, validation("days_ahead", "must not exceed 60")
	}

	_, cal, err := s.resolveDoctor(ctx, doctorProfileID)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]schedule.Slot)
	start := s.sched.Day(from)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		slots, err := s.slotsFor(ctx, cal, day, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			out[day.Format(time.DateOnly)] = slots
		}
	}
	return out, nil
}

// SuggestAlternatives lists, for each of rangeDays days starting at from, up
// to AlternativesPerDay earliest free slots. Days with none are left out.
func (s *Service) SuggestAlternatives(ctx context.Context, doctorProfileID uuid.UUID, from time.Time, rangeDays int) ([]schedule.DayAlternatives, error) {
	_, cal, err := s.resolveDoctor(ctx, doctorProfileID)
	if err != nil {
		return nil, err
	}
	return s.suggestFor(ctx, cal, from, rangeDays, uuid.Nil)
}

func (s *Service) suggestFor(ctx context.Context, cal calendar, from time.Time, rangeDays int, ignore uuid.UUID) ([]schedule.DayAlternatives, error) {
	if rangeDays <= 0 {
		rangeDays = s.sched.LookaheadDays
	}

	out := make([]schedule.DayAlternatives, 0)
	start := s.sched.Day(from)
	for i := 0; i < rangeDays; i++ {
		day := start.AddDate(0, 0, i)
		slots, err := s.slotsFor(ctx, cal, day, ignore)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}
		out = append(out, schedule.DayAlternatives{
			Date:  day.Format(time.DateOnly),
			Slots: schedule.Truncate(slots, s.sched.AlternativesPerDay),
		})
	}
	return out, nil
}

// Match is one ranked doctor for a preferred date.
type Match struct {
	Doctor          Doctor          `json:"doctor"`
	RecommendedSlot schedule.Slot   `json:"recommended_slot"`
	AllSlots        []schedule.Slot `json:"all_slots"`
}

// FindBestMatch ranks the given doctor profiles by their availability on
// date: best rated first, cheaper first among equals. Doctors without a free
// slot that day, or unknown ids, are left out.
func (s *Service) FindBestMatch(ctx context.Context, doctorProfileIDs []uuid.UUID, date time.Time, preferred *schedule.Clock) ([]Match, error) {
	doctors := make([]Doctor, 0, len(doctorProfileIDs))
	for _, id := range doctorProfileIDs {
		d, _, err := s.resolveDoctor(ctx, id)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				continue
			}
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	return s.rank(ctx, doctors, date, preferred)
}

func (s *Service) rank(ctx context.Context, doctors []Doctor, date time.Time, preferred *schedule.Clock) ([]Match, error) {
	matches := make([]Match, 0, len(doctors))
	for i := range doctors {
		d := doctors[i]
		slots, err := s.slotsFor(ctx, s.calendarFor(&d), date, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if len(slots) == 0 {
			continue
		}

		recommended := slots[0]
		if preferred != nil {
			recommended, _ = schedule.Closest(slots, *preferred)
		}
		matches = append(matches, Match{Doctor: d, RecommendedSlot: recommended, AllSlots: slots})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Doctor, matches[j].Doctor
		if a.AverageRating != b.AverageRating {
			return a.AverageRating > b.AverageRating
		}
		return a.ConsultationFee < b.ConsultationFee
	})
	return matches, nil
}

type SearchQuery struct {
	Specialization string
	PreferredDate  time.Time
	PreferredTime  *schedule.Clock
	MaxFee         *float64
	MinRating      float64
}

// Search filters bookable doctors and ranks them for the preferred date.
func (s *Service) Search(ctx context.Context, q SearchQuery) (matches []Match, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Search")
	defer func() { endSpan(span, err) }()

	if q.PreferredDate.IsZero() {
		return nil, validation("preferred_date", "is required")
	}
	if q.MinRating < 0 {
		return nil, validation("min_rating", "must not be negative")
	}

	doctors, err := s.repo.SearchDoctors(ctx, DoctorFilter{
		Specialization: q.Specialization,
		MaxFee:         q.MaxFee,
		MinRating:      q.MinRating,
		OnlyAvailable:  true,
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("scheduling.candidates", len(doctors)))

	return s.rank(ctx, doctors, q.PreferredDate, q.PreferredTime)
}
