package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
	"github.com/hackgods/smart-appointment-scheduling/internal/observability/metrics"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

var tracer = otel.Tracer("scheduling.internal.appointment")

// Notifier queues user-facing notifications. Delivery happens elsewhere.
type Notifier interface {
	Enqueue(ctx context.Context, msg notify.Message) (uuid.UUID, error)
}

type Service struct {
	repo     Repository
	doctors  DoctorDirectory
	locker   redisclient.Locker
	notifier Notifier
	sched    schedule.Config
	policy   config.Policy
	logger   *zap.Logger
	metrics  *metrics.SchedulingMetrics
	now      func() time.Time
}

type Option func(*Service)

// WithDoctors overrides the doctor lookups, typically with a cache.
func WithDoctors(d DoctorDirectory) Option {
	return func(s *Service) {
		if d != nil {
			s.doctors = d
		}
	}
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, locker redisclient.Locker, notifier Notifier, sched schedule.Config, policy config.Policy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		doctors:  repo,
		locker:   locker,
		notifier: notifier,
		sched:    sched,
		policy:   policy,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic timezone all calendar dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.sched.Loc()
}

func (s *Service) clock() time.Time {
	return s.now().In(s.sched.Loc())
}

// resolveDoctor looks a doctor up by profile id and builds its calendar.
func (s *Service) resolveDoctor(ctx context.Context, profileID uuid.UUID) (*Doctor, calendar, error) {
	d, err := s.doctors.GetDoctorByProfileID(ctx, profileID)
	return s.resolved(d, err)
}

// resolveDoctorByUser is resolveDoctor for the user id stored on appointments.
func (s *Service) resolveDoctorByUser(ctx context.Context, userID uuid.UUID) (*Doctor, calendar, error) {
	d, err := s.doctors.GetDoctorByUserID(ctx, userID)
	return s.resolved(d, err)
}

func (s *Service) resolved(d *Doctor, err error) (*Doctor, calendar, error) {
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, calendar{}, err
		}
		return nil, calendar{}, fmt.Errorf("load doctor: %w", err)
	}
	return d, s.calendarFor(d), nil
}

// emit queues msgs one by one and returns how many were accepted. A failed
// enqueue is logged and never fails the calling workflow.
func (s *Service) emit(ctx context.Context, msgs ...notify.Message) int {
	sent := 0
	for _, m := range msgs {
		if _, err := s.notifier.Enqueue(ctx, m); err != nil {
			s.metrics.ObserveNotification(m.Type, false)
			s.logger.Warn("failed to queue notification",
				zap.Error(err),
				zap.String("type", m.Type),
				zap.String("user_id", m.UserID.String()),
			)
			continue
		}
		s.metrics.ObserveNotification(m.Type, true)
		sent++
	}
	return sent
}

func message(userID, appointmentID uuid.UUID, kind string, priority notify.Priority, body string) notify.Message {
	id := appointmentID
	return notify.Message{
		UserID:        userID,
		AppointmentID: &id,
		Type:          kind,
		Priority:      priority,
		Body:          body,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

const displayLayout = "2006-01-02 15:04"
