package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrSlotTaken is returned by the store when the doctor already has an
	// active appointment at that instant.
	ErrSlotTaken = errors.New("slot already taken")
)

// DoctorDirectory resolves doctor profiles in either identifier space.
type DoctorDirectory interface {
	GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*Doctor, error)
	GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	DoctorDirectory

	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	SearchDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Active appointments of a doctor starting in [from, to).
	ListActiveForDoctor(ctx context.Context, doctorUserID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Creation and updates. Updates apply only when the current status is in from.
	CreateAppointment(ctx context.Context, a NewAppointment) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time, from []Status) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from []Status, reason *string) (*Appointment, error)

	// Reminder sweep
	FindReminderDue(ctx context.Context, tier ReminderTier, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, tier ReminderTier, at time.Time) error

	// Views
	ListByPatient(ctx context.Context, q PatientQuery) ([]PatientAppointment, int, error)
	CountByStatus(ctx context.Context, monthStart time.Time) (StatusCounts, error)
	TopDoctors(ctx context.Context, limit int) ([]DoctorCount, error)
}
