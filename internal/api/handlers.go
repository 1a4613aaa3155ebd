package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

// naive ISO layouts, read in the clinic timezone
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseDateTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q", raw)
}

func parseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), loc)
}

type AppointmentHandler struct {
	svc    AppointmentService
	logger *zap.Logger
	now    func() time.Time
}

func NewAppointmentHandler(svc AppointmentService, logger *zap.Logger, now func() time.Time) *AppointmentHandler {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentHandler{svc: svc, logger: logger, now: now}
}

func (h *AppointmentHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeServiceError(w, r, h.logger, err)
}

func (h *AppointmentHandler) today() time.Time {
	return h.now().In(h.svc.Location())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeValidation(w, field, "must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *AppointmentHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req BookAppointmentRequest
	if !decode(w, r, &req) {
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeValidation(w, "user_id", "must be a valid UUID")
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		writeValidation(w, "doctor_id", "must be a valid UUID")
		return
	}
	at, err := parseDateTime(req.AppointmentDate, h.svc.Location())
	if err != nil {
		writeValidation(w, "appointment_date", "must be an ISO 8601 date and time")
		return
	}

	res, err := h.svc.Book(r.Context(), appointment.BookRequest{
		PatientID:       userID,
		DoctorProfileID: doctorID,
		At:              at,
		Type:            req.AppointmentType,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookResponse{
		Message:           "Appointment booked successfully",
		Appointment:       toAppointmentResponse(res.Appointment, h.svc.Location()),
		Doctor:            toDoctorSummary(res.Doctor),
		NotificationsSent: res.NotificationsSent,
	})
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "appointment_id")
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decode(w, r, &req) {
		return
	}
	at, err := parseDateTime(req.NewAppointmentDate, h.svc.Location())
	if err != nil {
		writeValidation(w, "new_appointment_date", "must be an ISO 8601 date and time")
		return
	}

	res, err := h.svc.Reschedule(r.Context(), id, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	loc := h.svc.Location()
	writeJSON(w, http.StatusOK, RescheduleResponse{
		Message: "Appointment rescheduled successfully",
		Appointment: RescheduledAppointment{
			ID:      res.Appointment.ID,
			OldDate: res.OldDate.In(loc),
			NewDate: res.Appointment.ScheduledAt.In(loc),
			Status:  string(res.Appointment.Status),
		},
		NotificationsSent: res.NotificationsSent,
	})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "appointment_id")
	if !ok {
		return
	}
	// the body is optional
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CancelResponse{
		Message:           "Appointment cancelled successfully",
		AppointmentID:     res.Appointment.ID,
		RefundEligible:    res.RefundEligible,
		HoursRemaining:    math.Round(res.HoursRemaining*100) / 100,
		NotificationsSent: res.NotificationsSent,
	})
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm, "Appointment confirmed")
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete, "Appointment completed")
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error), msg string) {
	id, ok := pathID(w, r, "id", "appointment_id")
	if !ok {
		return
	}
	appt, err := apply(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionResponse{
		Message:     msg,
		Appointment: toAppointmentResponse(appt, h.svc.Location()),
	})
}

// Availability serves one day of slots for ?date=, or a multi-day map when
// days_ahead is given (starting at date, today by default).
func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "doctorId", "doctor_id")
	if !ok {
		return
	}
	loc := h.svc.Location()
	q := r.URL.Query()

	from := h.today()
	if raw := q.Get("date"); raw != "" {
		d, err := parseDate(raw, loc)
		if err != nil {
			writeValidation(w, "date", "must be YYYY-MM-DD")
			return
		}
		from = d
	}

	rawDays := q.Get("days_ahead")
	if rawDays == "" {
		slots, err := h.svc.AvailableSlots(r.Context(), doctorID, from)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DaySlotsResponse{
			DoctorID:       doctorID,
			Date:           from.Format(time.DateOnly),
			AvailableSlots: slots,
		})
		return
	}

	days, err := strconv.Atoi(rawDays)
	if err != nil || days <= 0 {
		writeValidation(w, "days_ahead", "must be a positive integer")
		return
	}
	availability, err := h.svc.Availability(r.Context(), doctorID, from, days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DoctorID:     doctorID,
		DaysAhead:    days,
		Availability: availability,
	})
}

func (h *AppointmentHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PreferredDate) == "" {
		writeValidation(w, "preferred_date", "is required")
		return
	}
	date, err := parseDate(req.PreferredDate, h.svc.Location())
	if err != nil {
		writeValidation(w, "preferred_date", "must be YYYY-MM-DD")
		return
	}

	query := appointment.SearchQuery{
		Specialization: strings.TrimSpace(req.Specialization),
		PreferredDate:  date,
		MaxFee:         req.MaxFee,
		MinRating:      req.MinRating,
	}
	if req.PreferredTime != "" {
		c, err := schedule.ParseClock(req.PreferredTime)
		if err != nil {
			writeValidation(w, "preferred_time", "must be HH:MM")
			return
		}
		query.PreferredTime = &c
	}

	matches, err := h.svc.Search(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]MatchResponse, 0, len(matches))
	for i := range matches {
		m := matches[i]
		out = append(out, MatchResponse{
			Doctor:          toDoctorSummary(&m.Doctor),
			RecommendedSlot: m.RecommendedSlot,
			AllSlots:        m.AllSlots,
		})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Matches: out, TotalFound: len(out)})
}

func (h *AppointmentHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SendDueReminders(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReminderResponse{
		Message:        fmt.Sprintf("Sent %d reminders", res.Total),
		ReminderResult: res,
	})
}

func (h *AppointmentHandler) UserAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "user_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	query := appointment.UserAppointmentsQuery{
		UserID: userID,
		Status: appointment.Status(q.Get("status")),
	}

	if raw := q.Get("upcoming_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeValidation(w, "upcoming_only", "must be a boolean")
			return
		}
		query.UpcomingOnly = v
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &query.Page}, {"per_page", &query.PerPage}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidation(w, p.name, "must be a positive integer")
			return
		}
		*p.dst = n
	}

	items, page, err := h.svc.ListUserAppointments(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	loc := h.svc.Location()
	out := make([]UserAppointmentResponse, 0, len(items))
	for i := range items {
		it := items[i]
		resp := UserAppointmentResponse{
			AppointmentResponse: toAppointmentResponse(&it.Appointment, loc),
			CanReschedule:       it.CanReschedule,
			CanCancel:           it.CanCancel,
		}
		if it.Doctor != nil {
			d := toDoctorSummary(it.Doctor)
			resp.Doctor = &d
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, UserAppointmentsResponse{Appointments: out, Pagination: page})
}

func (h *AppointmentHandler) DoctorSchedule(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(w, r, "id", "doctor_id")
	if !ok {
		return
	}
	q := r.URL.Query()
	loc := h.svc.Location()

	date := h.today()
	if raw := q.Get("date"); raw != "" {
		d, err := parseDate(raw, loc)
		if err != nil {
			writeValidation(w, "date", "must be YYYY-MM-DD")
			return
		}
		date = d
	}
	weekView := false
	if raw := q.Get("week_view"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeValidation(w, "week_view", "must be a boolean")
			return
		}
		weekView = v
	}

	if !weekView {
		doctor, day, err := h.svc.DoctorDay(r.Context(), doctorID, date)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DayScheduleResponse{
			Doctor:         toDoctorSummary(doctor),
			Date:           day.Date,
			DayName:        dayName(day.Date),
			Appointments:   day.Appointments,
			AvailableSlots: day.AvailableSlots,
			Statistics:     dayStatistics(day),
		})
		return
	}

	doctor, week, err := h.svc.DoctorWeek(r.Context(), doctorID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	days := make([]WeekDay, 0, len(week.Days))
	for _, day := range week.Days {
		days = append(days, WeekDay{
			Date:           day.Date,
			DayName:        dayName(day.Date),
			Appointments:   day.Appointments,
			AvailableSlots: day.AvailableSlots,
			Statistics:     dayStatistics(day),
		})
	}
	writeJSON(w, http.StatusOK, WeekScheduleResponse{
		Doctor:    toDoctorSummary(doctor),
		WeekStart: week.WeekStart,
		WeekEnd:   week.WeekEnd,
		Schedule:  days,
	})
}

func dayName(isoDate string) string {
	d, err := time.Parse(time.DateOnly, isoDate)
	if err != nil {
		return ""
	}
	return d.Weekday().String()
}

func (h *AppointmentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	popular := make([]PopularDoctorResponse, 0, len(stats.PopularDoctors))
	for i := range stats.PopularDoctors {
		p := stats.PopularDoctors[i]
		popular = append(popular, PopularDoctorResponse{
			Doctor:           toDoctorSummary(&p.Doctor),
			AppointmentCount: p.AppointmentCount,
		})
	}
	writeJSON(w, http.StatusOK, StatisticsResponse{
		TotalAppointments:     stats.TotalAppointments,
		ScheduledAppointments: stats.ScheduledAppointments,
		CompletedAppointments: stats.CompletedAppointments,
		CancelledAppointments: stats.CancelledAppointments,
		MonthlyAppointments:   stats.MonthlyAppointments,
		CancellationRate:      stats.CancellationRate,
		CompletionRate:        stats.CompletionRate,
		PopularDoctors:        popular,
	})
}
