package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100
	topDoctors     = 5
)

type UserAppointmentsQuery struct {
	UserID       uuid.UUID
	Status       Status
	UpcomingOnly bool
	Page         int
	PerPage      int
}

type UserAppointment struct {
	Appointment
	Doctor        *Doctor
	CanReschedule bool
	CanCancel     bool
}

type Page struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	PerPage int  `json:"per_page"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
	HasPrev bool `json:"has_prev"`
}

// ListUserAppointments pages through a patient's appointments, newest first.
func (s *Service) ListUserAppointments(ctx context.Context, q UserAppointmentsQuery) ([]UserAppointment, Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, Page{}, validation("status", "unknown status")
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = defaultPerPage
	}
	if q.PerPage > maxPerPage {
		q.PerPage = maxPerPage
	}

	if _, err := s.repo.GetUserByID(ctx, q.UserID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, Page{}, err
		}
		return nil, Page{}, fmt.Errorf("load user: %w", err)
	}

	now := s.clock()
	pq := PatientQuery{
		PatientID: q.UserID,
		Status:    q.Status,
		Limit:     q.PerPage,
		Offset:    (q.Page - 1) * q.PerPage,
	}
	if q.UpcomingOnly {
		pq.UpcomingFrom = &now
	}

	rows, total, err := s.repo.ListByPatient(ctx, pq)
	if err != nil {
		return nil, Page{}, fmt.Errorf("list user appointments: %w", err)
	}

	items := make([]UserAppointment, 0, len(rows))
	for _, r := range rows {
		movable := !r.Status.Terminal() && r.ScheduledAt.Sub(now) > s.policy.CancelCutoff
		items = append(items, UserAppointment{
			Appointment:   r.Appointment,
			Doctor:        r.Doctor,
			CanReschedule: movable,
			CanCancel:     movable,
		})
	}

	pages := int(math.Ceil(float64(total) / float64(q.PerPage)))
	return items, Page{
		Page:    q.Page,
		Pages:   pages,
		PerPage: q.PerPage,
		Total:   total,
		HasNext: q.Page < pages,
		HasPrev: q.Page > 1,
	}, nil
}

type ScheduleEntry struct {
	ID        uuid.UUID `json:"id"`
	Time      string    `json:"time"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	PatientID uuid.UUID `json:"patient_id"`
}

type DaySchedule struct {
	Date            string          `json:"date"`
	Appointments    []ScheduleEntry `json:"appointments"`
	AvailableSlots  []schedule.Slot `json:"available_slots"`
	UtilizationRate float64         `json:"utilization_rate"`
}

type WeekSchedule struct {
	WeekStart string        `json:"week_start"`
	WeekEnd   string        `json:"week_end"`
	Days      []DaySchedule `json:"days"`
}

// DoctorDay is the doctor's calendar for one day: active appointments, free
// slots and the share of bookable time already taken.
func (s *Service) DoctorDay(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) (*Doctor, DaySchedule, error) {
	d, cal, err := s.resolveDoctor(ctx, doctorProfileID)
	if err != nil {
		return nil, DaySchedule{}, err
	}
	day, err := s.daySchedule(ctx, cal, date)
	if err != nil {
		return nil, DaySchedule{}, err
	}
	return d, day, nil
}

// DoctorWeek is DoctorDay for the Monday-to-Sunday week containing date.
func (s *Service) DoctorWeek(ctx context.Context, doctorProfileID uuid.UUID, date time.Time) (*Doctor, WeekSchedule, error) {
	d, cal, err := s.resolveDoctor(ctx, doctorProfileID)
	if err != nil {
		return nil, WeekSchedule{}, err
	}

	start := s.sched.Day(date)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)

	week := WeekSchedule{
		WeekStart: start.Format(time.DateOnly),
		WeekEnd:   start.AddDate(0, 0, 6).Format(time.DateOnly),
		Days:      make([]DaySchedule, 0, 7),
	}
	for i := 0; i < 7; i++ {
		day, err := s.daySchedule(ctx, cal, start.AddDate(0, 0, i))
		if err != nil {
			return nil, WeekSchedule{}, err
		}
		week.Days = append(week.Days, day)
	}
	return d, week, nil
}

func (s *Service) daySchedule(ctx context.Context, cal calendar, date time.Time) (DaySchedule, error) {
	day := s.sched.Day(date)
	appts, err := s.repo.ListActiveForDoctor(ctx, cal.ref.UserID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return DaySchedule{}, fmt.Errorf("list doctor appointments: %w", err)
	}
	slots, err := s.slotsFor(ctx, cal, day, uuid.Nil)
	if err != nil {
		return DaySchedule{}, err
	}

	entries := make([]ScheduleEntry, 0, len(appts))
	for _, a := range appts {
		entries = append(entries, ScheduleEntry{
			ID:        a.ID,
			Time:      a.ScheduledAt.In(s.sched.Loc()).Format("15:04"),
			Type:      a.Type,
			Status:    a.Status,
			PatientID: a.PatientID,
		})
	}

	return DaySchedule{
		Date:            day.Format(time.DateOnly),
		Appointments:    entries,
		AvailableSlots:  slots,
		UtilizationRate: percent(len(entries), len(entries)+len(slots)),
	}, nil
}

type PopularDoctor struct {
	Doctor           Doctor `json:"doctor"`
	AppointmentCount int    `json:"appointment_count"`
}

type Statistics struct {
	TotalAppointments     int             `json:"total_appointments"`
	ScheduledAppointments int             `json:"scheduled_appointments"`
	CompletedAppointments int             `json:"completed_appointments"`
	CancelledAppointments int             `json:"cancelled_appointments"`
	MonthlyAppointments   int             `json:"monthly_appointments"`
	CancellationRate      float64         `json:"cancellation_rate"`
	CompletionRate        float64         `json:"completion_rate"`
	PopularDoctors        []PopularDoctor `json:"popular_doctors"`
}

// Statistics aggregates appointment counters across all doctors.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	now := s.clock()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	counts, err := s.repo.CountByStatus(ctx, monthStart)
	if err != nil {
		return Statistics{}, err
	}
	top, err := s.repo.TopDoctors(ctx, topDoctors)
	if err != nil {
		return Statistics{}, err
	}

	popular := make([]PopularDoctor, 0, len(top))
	for _, t := range top {
		d, err := s.doctors.GetDoctorByUserID(ctx, t.DoctorUserID)
		if err != nil {
			if errors.Is(err, ErrDoctorNotFound) {
				continue
			}
			return Statistics{}, fmt.Errorf("load doctor: %w", err)
		}
		popular = append(popular, PopularDoctor{Doctor: *d, AppointmentCount: t.Count})
	}

	return Statistics{
		TotalAppointments:     counts.Total,
		ScheduledAppointments: counts.Scheduled,
		CompletedAppointments: counts.Completed,
		CancelledAppointments: counts.Cancelled,
		MonthlyAppointments:   counts.Monthly,
		CancellationRate:      percent(counts.Cancelled, counts.Total),
		CompletionRate:        percent(counts.Completed, counts.Total),
		PopularDoctors:        popular,
	}, nil
}

// percent returns part/whole*100 rounded to two decimals, 0 for an empty whole.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}
