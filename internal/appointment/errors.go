package appointment

import (
	"errors"
	"fmt"

	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrDoctorBusy              = errors.New("doctor calendar is being updated, please retry")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validation(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// SlotConflictError means the requested time is not a free slot. It carries
// the alternatives offered to the caller.
type SlotConflictError struct {
	Alternatives []schedule.DayAlternatives
}

func (e *SlotConflictError) Error() string {
	return "requested time is not available"
}

// CutoffViolationError rejects a cancellation inside the cutoff window.
type CutoffViolationError struct {
	HoursRemaining float64
}

func (e *CutoffViolationError) Error() string {
	return fmt.Sprintf("appointment cannot be cancelled less than the cutoff before it starts (%.2f hours remaining)", e.HoursRemaining)
}
