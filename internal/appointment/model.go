package appointment

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
)

// activeStatuses occupy the doctor's calendar.
var activeStatuses = []Status{StatusScheduled, StatusConfirmed, StatusRescheduled}

// Active reports whether an appointment in this status blocks its slot.
func (s Status) Active() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusRescheduled:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

type User struct {
	ID        uuid.UUID
	Username  string
	Email     *string
	CreatedAt time.Time
}

// DoctorRef names a doctor in both identifier spaces. Appointments carry the
// user id; availability and ratings hang off the profile id.
type DoctorRef struct {
	ProfileID uuid.UUID
	UserID    uuid.UUID
}

type Doctor struct {
	ProfileID       uuid.UUID       `json:"id"`
	UserID          uuid.UUID       `json:"user_id"`
	FullName        string          `json:"full_name"`
	Specialization  string          `json:"specialization"`
	ConsultationFee float64         `json:"consultation_fee"`
	Available       bool            `json:"available_for_consultation"`
	WorkingHours    json.RawMessage `json:"working_hours,omitempty"`
	AverageRating   float64         `json:"average_rating"`
	TotalReviews    int             `json:"total_reviews"`
}

func (d Doctor) Ref() DoctorRef {
	return DoctorRef{ProfileID: d.ProfileID, UserID: d.UserID}
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	DoctorUserID      uuid.UUID
	ScheduledAt       time.Time
	Type              string
	Status            Status
	ReminderSent      bool
	Reminder24hSentAt *time.Time
	Reminder1hSentAt  *time.Time
	CancelReason      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Interval is the busy period the appointment occupies.
func (a Appointment) Interval(d time.Duration) schedule.Interval {
	return schedule.Interval{Start: a.ScheduledAt, End: a.ScheduledAt.Add(d)}
}

// PatientAppointment is a row of a patient's appointment history.
type PatientAppointment struct {
	Appointment
	Doctor *Doctor
}

type NewAppointment struct {
	PatientID    uuid.UUID
	DoctorUserID uuid.UUID
	ScheduledAt  time.Time
	Type         string
}

// DoctorFilter narrows the doctor search. Zero fields do not filter.
type DoctorFilter struct {
	Specialization string
	MaxFee         *float64
	MinRating      float64
	OnlyAvailable  bool
}

// PatientQuery pages through one patient's appointments, newest first.
type PatientQuery struct {
	PatientID    uuid.UUID
	Status       Status
	UpcomingFrom *time.Time
	Limit        int
	Offset       int
}

type ReminderTier string

const (
	Tier24h ReminderTier = "24h"
	Tier1h  ReminderTier = "1h"
)

type StatusCounts struct {
	Total     int
	Scheduled int
	Completed int
	Cancelled int
	Monthly   int
}

type DoctorCount struct {
	DoctorUserID uuid.UUID
	Count        int
}
