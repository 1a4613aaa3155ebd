package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeValidation(w http.ResponseWriter, field, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    "validation_error",
		Message: field + ": " + message,
		Details: map[string]any{"field": field},
	})
}

// writeServiceError maps scheduling errors onto HTTP responses. Anything
// unrecognised is logged and reported as a 500 without internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		invalid  *appointment.ValidationError
		conflict *appointment.SlotConflictError
		cutoff   *appointment.CutoffViolationError
	)

	switch {
	case errors.As(err, &invalid):
		writeValidation(w, invalid.Field, invalid.Message)
	case errors.As(err, &cutoff):
		writeJSON(w, http.StatusBadRequest, CutoffResponse{
			ErrorResponse: ErrorResponse{
				Code:    "cancellation_too_late",
				Message: "appointments cannot be cancelled this close to their start",
			},
			HoursRemaining: math.Round(cutoff.HoursRemaining*100) / 100,
		})
	case errors.As(err, &conflict):
		alts := conflict.Alternatives
		if alts == nil {
			alts = []schedule.DayAlternatives{}
		}
		writeJSON(w, http.StatusConflict, ConflictResponse{
			ErrorResponse: ErrorResponse{
				Code:    "slot_unavailable",
				Message: "the requested time is not available",
			},
			AvailableAlternatives: alts,
		})
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		logger.Error("request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
