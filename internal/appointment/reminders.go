package appointment

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
)

type reminderWindow struct {
	tier   ReminderTier
	lead   time.Duration
	margin time.Duration
}

var reminderWindows = []reminderWindow{
	{tier: Tier24h, lead: 24 * time.Hour, margin: 30 * time.Minute},
	{tier: Tier1h, lead: time.Hour, margin: 15 * time.Minute},
}

type ReminderResult struct {
	Reminders24h int `json:"reminders_24h"`
	Reminders1h  int `json:"reminders_1h"`
	Total        int `json:"total"`
	// Appointments left unmarked because a reminder could not be queued.
	Failed int `json:"failed"`
}

// SendDueReminders queues the reminders due at now. Each tier fires at most
// once per appointment; an appointment whose reminders could not all be
// queued stays unmarked and is retried by the next sweep.
func (s *Service) SendDueReminders(ctx context.Context, now time.Time) (res ReminderResult, err error) {
	ctx, span := tracer.Start(ctx, "appointment.SendDueReminders")
	defer func() { endSpan(span, err) }()

	for _, w := range reminderWindows {
		target := now.Add(w.lead)
		due, err := s.repo.FindReminderDue(ctx, w.tier, target.Add(-w.margin), target.Add(w.margin))
		if err != nil {
			return res, fmt.Errorf("find %s reminders: %w", w.tier, err)
		}

		sent := 0
		for _, appt := range due {
			msgs := s.reminderMessages(ctx, w.tier, appt)
			n := s.emit(ctx, msgs...)
			sent += n
			if n < len(msgs) {
				res.Failed++
				continue
			}
			if err := s.repo.MarkReminderSent(ctx, appt.ID, w.tier, now); err != nil {
				s.logger.Error("failed to mark reminder sent",
					zap.Error(err),
					zap.String("appointment_id", appt.ID.String()),
					zap.String("tier", string(w.tier)),
				)
			}
		}

		s.metrics.ObserveReminders(string(w.tier), sent)
		switch w.tier {
		case Tier24h:
			res.Reminders24h = sent
		case Tier1h:
			res.Reminders1h = sent
		}
	}

	res.Total = res.Reminders24h + res.Reminders1h
	span.SetAttributes(attribute.Int("scheduling.reminders", res.Total))
	s.logger.Info("reminder sweep finished",
		zap.Int("reminders_24h", res.Reminders24h),
		zap.Int("reminders_1h", res.Reminders1h),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) reminderMessages(ctx context.Context, tier ReminderTier, appt Appointment) []notify.Message {
	doctorName := "your doctor"
	if d, err := s.doctors.GetDoctorByUserID(ctx, appt.DoctorUserID); err == nil {
		doctorName = "Dr. " + d.FullName
	}
	at := appt.ScheduledAt.In(s.sched.Loc()).Format("15:04")

	if tier == Tier1h {
		return []notify.Message{
			message(appt.PatientID, appt.ID, notify.TypeReminder, notify.PriorityUrgent,
				fmt.Sprintf("Reminder: your appointment with %s starts within the hour, at %s", doctorName, at)),
		}
	}
	return []notify.Message{
		message(appt.PatientID, appt.ID, notify.TypeReminder, notify.PriorityHigh,
			fmt.Sprintf("Reminder: you have an appointment tomorrow with %s at %s", doctorName, at)),
		message(appt.DoctorUserID, appt.ID, notify.TypeReminder, notify.PriorityNormal,
			fmt.Sprintf("Reminder: you have an appointment tomorrow at %s", at)),
	}
}
