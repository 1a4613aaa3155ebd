package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/smart-appointment-scheduling/internal/appointment"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

type BookAppointmentRequest struct {
	UserID          string `json:"user_id"`
	DoctorID        string `json:"doctor_id"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentType string `json:"appointment_type"`
}

type RescheduleRequest struct {
	NewAppointmentDate string `json:"new_appointment_date"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type SearchRequest struct {
	Specialization string   `json:"specialization"`
	PreferredDate  string   `json:"preferred_date"`
	PreferredTime  string   `json:"preferred_time"`
	MaxFee         *float64 `json:"max_fee"`
	MinRating      float64  `json:"min_rating"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	DoctorUserID    uuid.UUID `json:"doctor_user_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	AppointmentType string    `json:"appointment_type"`
	Status          string    `json:"status"`
	ReminderSent    bool      `json:"reminder_sent"`
	CancelReason    *string   `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type DoctorSummary struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FullName        string    `json:"full_name"`
	Specialization  string    `json:"specialization"`
	ConsultationFee float64   `json:"consultation_fee"`
	AverageRating   float64   `json:"average_rating"`
	TotalReviews    int       `json:"total_reviews"`
}

type BookResponse struct {
	Message           string              `json:"message"`
	Appointment       AppointmentResponse `json:"appointment"`
	Doctor            DoctorSummary       `json:"doctor"`
	NotificationsSent int                 `json:"notifications_sent"`
}

type RescheduledAppointment struct {
	ID      uuid.UUID `json:"id"`
	OldDate time.Time `json:"old_date"`
	NewDate time.Time `json:"new_date"`
	Status  string    `json:"status"`
}

type RescheduleResponse struct {
	Message           string                 `json:"message"`
	Appointment       RescheduledAppointment `json:"appointment"`
	NotificationsSent int                    `json:"notifications_sent"`
}

type CancelResponse struct {
	Message           string    `json:"message"`
	AppointmentID     uuid.UUID `json:"appointment_id"`
	RefundEligible    bool      `json:"refund_eligible"`
	HoursRemaining    float64   `json:"hours_remaining"`
	NotificationsSent int       `json:"notifications_sent"`
}

type TransitionResponse struct {
	Message     string              `json:"message"`
	Appointment AppointmentResponse `json:"appointment"`
}

type DaySlotsResponse struct {
	DoctorID       uuid.UUID       `json:"doctor_id"`
	Date           string          `json:"date"`
	AvailableSlots []schedule.Slot `json:"available_slots"`
}

type AvailabilityResponse struct {
	DoctorID     uuid.UUID                  `json:"doctor_id"`
	DaysAhead    int                        `json:"days_ahead"`
	Availability map[string][]schedule.Slot `json:"availability"`
}

type MatchResponse struct {
	Doctor          DoctorSummary   `json:"doctor"`
	RecommendedSlot schedule.Slot   `json:"recommended_slot"`
	AllSlots        []schedule.Slot `json:"all_slots"`
}

type SearchResponse struct {
	Matches    []MatchResponse `json:"matches"`
	TotalFound int             `json:"total_found"`
}

type ReminderResponse struct {
	Message string `json:"message"`
	appointment.ReminderResult
}

type UserAppointmentResponse struct {
	AppointmentResponse
	Doctor        *DoctorSummary `json:"doctor,omitempty"`
	CanReschedule bool           `json:"can_reschedule"`
	CanCancel     bool           `json:"can_cancel"`
}

type UserAppointmentsResponse struct {
	Appointments []UserAppointmentResponse `json:"appointments"`
	Pagination   appointment.Page          `json:"pagination"`
}

type DayStatistics struct {
	TotalAppointments int     `json:"total_appointments"`
	AvailableSlots    int     `json:"available_slots"`
	UtilizationRate   float64 `json:"utilization_rate"`
}

type DayScheduleResponse struct {
	Doctor         DoctorSummary               `json:"doctor"`
	Date           string                      `json:"date"`
	DayName        string                      `json:"day_name"`
	Appointments   []appointment.ScheduleEntry `json:"appointments"`
	AvailableSlots []schedule.Slot             `json:"available_slots"`
	Statistics     DayStatistics               `json:"statistics"`
}

type WeekDay struct {
	Date           string                      `json:"date"`
	DayName        string                      `json:"day_name"`
	Appointments   []appointment.ScheduleEntry `json:"appointments"`
	AvailableSlots []schedule.Slot             `json:"available_slots"`
	Statistics     DayStatistics               `json:"statistics"`
}

type WeekScheduleResponse struct {
	Doctor    DoctorSummary `json:"doctor"`
	WeekStart string        `json:"week_start"`
	WeekEnd   string        `json:"week_end"`
	Schedule  []WeekDay     `json:"schedule"`
}

type PopularDoctorResponse struct {
	Doctor           DoctorSummary `json:"doctor"`
	AppointmentCount int           `json:"appointment_count"`
}

type StatisticsResponse struct {
	TotalAppointments     int                     `json:"total_appointments"`
	ScheduledAppointments int                     `json:"scheduled_appointments"`
	CompletedAppointments int                     `json:"completed_appointments"`
	CancelledAppointments int                     `json:"cancelled_appointments"`
	MonthlyAppointments   int                     `json:"monthly_appointments"`
	CancellationRate      float64                 `json:"cancellation_rate"`
	CompletionRate        float64                 `json:"completion_rate"`
	PopularDoctors        []PopularDoctorResponse `json:"popular_doctors"`
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ConflictResponse always carries the alternatives list, empty when none
// exist within the lookahead.
type ConflictResponse struct {
	ErrorResponse
	AvailableAlternatives []schedule.DayAlternatives `json:"available_alternatives"`
}

type CutoffResponse struct {
	ErrorResponse
	HoursRemaining float64 `json:"hours_remaining"`
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		UserID:          a.PatientID,
		DoctorUserID:    a.DoctorUserID,
		AppointmentDate: a.ScheduledAt.In(loc),
		AppointmentType: a.Type,
		Status:          string(a.Status),
		ReminderSent:    a.ReminderSent,
		CancelReason:    a.CancelReason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toDoctorSummary(d *appointment.Doctor) DoctorSummary {
	return DoctorSummary{
		ID:              d.ProfileID,
		UserID:          d.UserID,
		FullName:        d.FullName,
		Specialization:  d.Specialization,
		ConsultationFee: d.ConsultationFee,
		AverageRating:   d.AverageRating,
		TotalReviews:    d.TotalReviews,
	}
}

func dayStatistics(day appointment.DaySchedule) DayStatistics {
	return DayStatistics{
		TotalAppointments: len(day.Appointments),
		AvailableSlots:    len(day.AvailableSlots),
		UtilizationRate:   day.UtilizationRate,
	}
}
