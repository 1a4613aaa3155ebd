package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Service AppointmentService
	Logger  *zap.Logger
	Checks  []DependencyCheck
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Env     string
	Version string
	Now     func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(logger))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	h := NewAppointmentHandler(cfg.Service, logger, cfg.Now)
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/book", h.Book)
		r.Get("/availability/{doctorId}", h.Availability)
		r.Post("/search", h.Search)
		r.Post("/reminders/send", h.SendReminders)
		r.Get("/user/{id}/appointments", h.UserAppointments)
		r.Get("/doctor/{id}/schedule", h.DoctorSchedule)
		r.Get("/statistics", h.Statistics)

		r.Post("/{id}/reschedule", h.Reschedule)
		r.Post("/{id}/cancel", h.Cancel)
		r.Post("/{id}/confirm", h.Confirm)
		r.Post("/{id}/complete", h.Complete)
	})

	return r
}
