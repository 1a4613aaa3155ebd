package notify

import (
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by the appointment workflows.
const (
	TypeAppointmentBooked      = "appointment_booked"
	TypeAppointmentConfirmed   = "appointment_confirmed"
	TypeAppointmentRescheduled = "appointment_rescheduled"
	TypeAppointmentCancelled   = "appointment_cancelled"
	TypeReminder               = "appointment_reminder"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Message is a user-facing notification. It is persisted in the outbox and
// handed to a transport by the Deliverer.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Type          string     `json:"notification_type"`
	Priority      Priority   `json:"priority"`
	Body          string     `json:"message"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"created_at"`
}
