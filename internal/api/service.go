package api

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

// AppointmentService is the scheduling surface the HTTP layer drives.
// *appointment.Service implements it.
type AppointmentService interface {
	Location() *time.Location

	Book(ctx context.Context, req appointment.BookRequest) (*appointment.BookingResult, error)
	Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time) (*appointment.RescheduleResult, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.CancelResult, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)

	AvailableSlots(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) ([]schedule.Slot, error)
	Availability(ctx context.Context, doctorProfileID uuid.UUID, from time.Time, days int) (map[string][]schedule.Slot, error)
	Search(ctx context.Context, q appointment.SearchQuery) ([]appointment.Match, error)

	SendDueReminders(ctx context.Context, now time.Time) (appointment.ReminderResult, error)

	ListUserAppointments(ctx context.Context, q appointment.UserAppointmentsQuery) ([]appointment.UserAppointment, appointment.Page, error)
	DoctorDay(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) (*appointment.Doctor, appointment.DaySchedule, error)
	DoctorWeek(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) (*appointment.Doctor, appointment.WeekSchedule, error)
	Statistics(ctx context.Context) (appointment.Statistics, error)
}

var _ AppointmentService = (*appointment.Service)(nil)
