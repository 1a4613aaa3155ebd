package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

type BookRequest struct {
	PatientID       uuid.UUID
	DoctorProfileID uuid.UUID
	At              time.Time
	Type            string
}

type BookingResult struct {
	Appointment       *Appointment
	Doctor            *Doctor
	NotificationsSent int
}

// Book reserves the requested time for the patient if it is exactly the start
// of a free slot. Otherwise a *SlotConflictError with alternatives starting at
// the requested date is returned.
func (s *Service) Book(ctx context.Context, req BookRequest) (res *BookingResult, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Book")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveWorkflow("book", outcome(err)) }()

	switch {
	case req.PatientID == uuid.Nil:
		return nil, validation("user_id", "is required")
	case req.DoctorProfileID == uuid.Nil:
		return nil, validation("doctor_id", "is required")
	case strings.TrimSpace(req.Type) == "":
		return nil, validation("appointment_type", "is required")
	case req.At.IsZero():
		return nil, validation("appointment_date", "is required")
	}
	span.SetAttributes(
		attribute.String("scheduling.patient_id", req.PatientID.String()),
		attribute.String("scheduling.doctor_profile_id", req.DoctorProfileID.String()),
	)

	at := req.At.In(s.sched.Loc())
	if !at.After(s.clock()) {
		return nil, validation("appointment_date", "must be in the future")
	}

	patient, err := s.repo.GetUserByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	doctor, cal, err := s.resolveDoctor(ctx, req.DoctorProfileID)
	if err != nil {
		return nil, err
	}

	var created *Appointment
	err = s.locker.WithDoctorLock(ctx, cal.ref.UserID, func(lockCtx context.Context) error {
		slots, err := s.slotsFor(lockCtx, cal, at, uuid.Nil)
		if err != nil {
			return fmt.Errorf("compute slots: %w", err)
		}

		slot, ok := schedule.Match(slots, at)
		if !ok {
			return s.conflict(lockCtx, cal, at, uuid.Nil)
		}

		appt, err := s.repo.CreateAppointment(lockCtx, NewAppointment{
			PatientID:    patient.ID,
			DoctorUserID: cal.ref.UserID,
			ScheduledAt:  slot.Start,
			Type:         strings.TrimSpace(req.Type),
		})
		if errors.Is(err, ErrSlotTaken) {
			return s.conflict(lockCtx, cal, at, uuid.Nil)
		}
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	when := created.ScheduledAt.In(s.sched.Loc()).Format(displayLayout)
	sent := s.emit(ctx,
		message(cal.ref.UserID, created.ID, notify.TypeAppointmentBooked, notify.PriorityNormal,
			fmt.Sprintf("New appointment with %s on %s", patient.Username, when)),
		message(patient.ID, created.ID, notify.TypeAppointmentBooked, notify.PriorityNormal,
			fmt.Sprintf("Your appointment with Dr. %s on %s is confirmed", doctor.FullName, when)),
	)

	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("doctor_user_id", cal.ref.UserID.String()),
		zap.Time("scheduled_at", created.ScheduledAt),
		zap.Int("notifications", sent),
	)

	return &BookingResult{Appointment: created, Doctor: doctor, NotificationsSent: sent}, nil
}

type RescheduleResult struct {
	Appointment       *Appointment
	OldDate           time.Time
	NotificationsSent int
}

// Reschedule moves a non-terminal appointment to newAt, which must be the
// start of a free slot of the same doctor. The appointment's own current
// booking does not block the move.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newAt time.Time) (res *RescheduleResult, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveWorkflow("reschedule", outcome(err)) }()
	span.SetAttributes(attribute.String("scheduling.appointment_id", id.String()))

	if newAt.IsZero() {
		return nil, validation("new_appointment_date", "is required")
	}
	at := newAt.In(s.sched.Loc())
	if !at.After(s.clock()) {
		return nil, validation("new_appointment_date", "must be in the future")
	}

	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	_, cal, err := s.resolveDoctorByUser(ctx, appt.DoctorUserID)
	if err != nil {
		return nil, err
	}

	var updated *Appointment
	err = s.locker.WithDoctorLock(ctx, cal.ref.UserID, func(lockCtx context.Context) error {
		slots, err := s.slotsFor(lockCtx, cal, at, appt.ID)
		if err != nil {
			return fmt.Errorf("compute slots: %w", err)
		}

		slot, ok := schedule.Match(slots, at)
		if !ok {
			return s.conflict(lockCtx, cal, at, appt.ID)
		}

		moved, err := s.repo.RescheduleAppointment(lockCtx, appt.ID, slot.Start, activeStatuses)
		switch {
		case errors.Is(err, ErrSlotTaken):
			return s.conflict(lockCtx, cal, at, appt.ID)
		case errors.Is(err, ErrAppointmentNotFound):
			// status changed since we loaded it
			return ErrInvalidStatusTransition
		case err != nil:
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		updated = moved
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	loc := s.sched.Loc()
	oldWhen := appt.ScheduledAt.In(loc).Format(displayLayout)
	newWhen := updated.ScheduledAt.In(loc).Format(displayLayout)
	sent := s.emit(ctx,
		message(appt.DoctorUserID, appt.ID, notify.TypeAppointmentRescheduled, notify.PriorityNormal,
			fmt.Sprintf("Appointment moved from %s to %s", oldWhen, newWhen)),
		message(appt.PatientID, appt.ID, notify.TypeAppointmentRescheduled, notify.PriorityNormal,
			fmt.Sprintf("Your appointment was moved to %s", newWhen)),
	)

	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", appt.ID.String()),
		zap.Time("old_scheduled_at", appt.ScheduledAt),
		zap.Time("new_scheduled_at", updated.ScheduledAt),
	)

	return &RescheduleResult{Appointment: updated, OldDate: appt.ScheduledAt, NotificationsSent: sent}, nil
}

type CancelResult struct {
	Appointment       *Appointment
	RefundEligible    bool
	HoursRemaining    float64
	NotificationsSent int
}

const defaultCancelReason = "No reason provided"

// Cancel cancels a non-terminal appointment unless it starts within the
// cancellation cutoff. Refund eligibility is informational only.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (res *CancelResult, err error) {
	ctx, span := tracer.Start(ctx, "appointment.Cancel")
	defer func() { endSpan(span, err) }()
	defer func() { s.metrics.ObserveWorkflow("cancel", outcome(err)) }()
	span.SetAttributes(attribute.String("scheduling.appointment_id", id.String()))

	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.Terminal() {
		return nil, ErrInvalidStatusTransition
	}

	remaining := appt.ScheduledAt.Sub(s.clock())
	if remaining < s.policy.CancelCutoff {
		return nil, &CutoffViolationError{HoursRemaining: remaining.Hours()}
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusCancelled, activeStatuses, &reason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	when := appt.ScheduledAt.In(s.sched.Loc()).Format(displayLayout)
	sent := s.emit(ctx,
		message(appt.DoctorUserID, appt.ID, notify.TypeAppointmentCancelled, notify.PriorityNormal,
			fmt.Sprintf("Appointment on %s was cancelled. Reason: %s", when, reason)),
		message(appt.PatientID, appt.ID, notify.TypeAppointmentCancelled, notify.PriorityNormal,
			fmt.Sprintf("Your appointment on %s was cancelled", when)),
	)

	refund := remaining > s.policy.RefundCutoff
	s.logger.Info("appointment cancelled",
		zap.String("appointment_id", appt.ID.String()),
		zap.Bool("refund_eligible", refund),
	)

	return &CancelResult{
		Appointment:       updated,
		RefundEligible:    refund,
		HoursRemaining:    remaining.Hours(),
		NotificationsSent: sent,
	}, nil
}

// Confirm moves a scheduled or rescheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusConfirmed, []Status{StatusScheduled, StatusRescheduled})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, message(appt.PatientID, appt.ID, notify.TypeAppointmentConfirmed, notify.PriorityNormal,
		fmt.Sprintf("Your appointment on %s was confirmed by the clinic", appt.ScheduledAt.In(s.sched.Loc()).Format(displayLayout))))
	return appt, nil
}

// Complete marks an active appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, activeStatuses)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, from []Status) (*Appointment, error) {
	appt, err := s.loadAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, st := range from {
		if appt.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to, from, nil)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	s.logger.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

func (s *Service) loadAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// conflict builds the SlotConflictError for a rejected time on the doctor's
// calendar, offering alternatives from that date on.
func (s *Service) conflict(ctx context.Context, cal calendar, at time.Time, ignore uuid.UUID) error {
	alts, err := s.suggestFor(ctx, cal, at, s.sched.LookaheadDays, ignore)
	if err != nil {
		return fmt.Errorf("suggest alternatives: %w", err)
	}
	return &SlotConflictError{Alternatives: alts}
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDoctorBusy
	}
	return err
}

func outcome(err error) string {
	var conflict *SlotConflictError
	var cutoff *CutoffViolationError
	var invalid *ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &cutoff):
		return "cutoff"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.Is(err, ErrDoctorBusy):
		return "busy"
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "invalid_transition"
	}
	return "error"
}
