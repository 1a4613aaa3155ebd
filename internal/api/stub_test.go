package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

// stubService answers every call from its function fields. Unset fields
// panic, which the recover middleware turns into a 500.
type stubService struct {
	loc *time.Location

	book           func(appointment.BookRequest) (*appointment.BookingResult, error)
	reschedule     func(uuid.UUID, time.Time) (*appointment.RescheduleResult, error)
	cancel         func(uuid.UUID, string) (*appointment.CancelResult, error)
	confirm        func(uuid.UUID) (*appointment.Appointment, error)
	complete       func(uuid.UUID) (*appointment.Appointment, error)
	availableSlots func(uuid.UUID, time.Time) ([]schedule.Slot, error)
	availability   func(uuid.UUID, time.Time, int) (map[string][]schedule.Slot, error)
	search         func(appointment.SearchQuery) ([]appointment.Match, error)
	reminders      func(time.Time) (appointment.ReminderResult, error)
	listUser       func(appointment.UserAppointmentsQuery) ([]appointment.UserAppointment, appointment.Page, error)
	doctorDay      func(uuid.UUID, time.Time) (*appointment.Doctor, appointment.DaySchedule, error)
	doctorWeek     func(uuid.UUID, time.Time) (*appointment.Doctor, appointment.WeekSchedule, error)
	statistics     func() (appointment.Statistics, error)
}

func (s *stubService) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

func (s *stubService) Book(_ context.Context, req appointment.BookRequest) (*appointment.BookingResult, error) {
	return s.book(req)
}

func (s *stubService) Reschedule(_ context.Context, id uuid.UUID, at time.Time) (*appointment.RescheduleResult, error) {
	return s.reschedule(id, at)
}

func (s *stubService) Cancel(_ context.Context, id uuid.UUID, reason string) (*appointment.CancelResult, error) {
	return s.cancel(id, reason)
}

func (s *stubService) Confirm(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.confirm(id)
}

func (s *stubService) Complete(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return s.complete(id)
}

func (s *stubService) AvailableSlots(_ context.Context, id uuid.UUID, date time.Time) ([]schedule.Slot, error) {
	return s.availableSlots(id, date)
}

func (s *stubService) Availability(_ context.Context, id uuid.UUID, from time.Time, days int) (map[string][]schedule.Slot, error) {
	return s.availability(id, from, days)
}

func (s *stubService) Search(_ context.Context, q appointment.SearchQuery) ([]appointment.Match, error) {
	return s.search(q)
}

func (s *stubService) SendDueReminders(_ context.Context, now time.Time) (appointment.ReminderResult, error) {
	return s.reminders(now)
}

func (s *stubService) ListUserAppointments(_ context.Context, q appointment.UserAppointmentsQuery) ([]appointment.UserAppointment, appointment.Page, error) {
	return s.listUser(q)
}

func (s *stubService) DoctorDay(_ context.Context, id uuid.UUID, date time.Time) (*appointment.Doctor, appointment.DaySchedule, error) {
	return s.doctorDay(id, date)
}

func (s *stubService) DoctorWeek(_ context.Context, id uuid.UUID, date time.Time) (*appointment.Doctor, appointment.WeekSchedule, error) {
	return s.doctorWeek(id, date)
}

func (s *stubService) Statistics(_ context.Context) (appointment.Statistics, error) {
	return s.statistics()
}
