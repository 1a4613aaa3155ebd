package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/smart-appointment-scheduling/internal/db"
)

// activeSlotConstraint is the partial unique index over active bookings.
const activeSlotConstraint = "appointments_doctor_slot_active_uq"

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func newPgRepositoryWithDB(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

const doctorColumns = `
	d.id, d.user_id, d.full_name, d.specialization, d.consultation_fee,
	d.available_for_consultation, d.working_hours,
	COALESCE(r.avg_rating, 0), COALESCE(r.total, 0)
`

const doctorFrom = `
	FROM doctor_profiles d
	LEFT JOIN LATERAL (
		SELECT AVG(rating)::float8 AS avg_rating, COUNT(*)::int AS total
		FROM doctor_reviews
		WHERE doctor_profile_id = d.id AND is_approved
	) r ON true
`

const appointmentColumns = `
	id, patient_id, doctor_user_id, scheduled_at, appointment_type, status,
	reminder_sent, reminder_24h_sent_at, reminder_1h_sent_at, cancel_reason,
	created_at, updated_at
`

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var hours []byte

	err := row.Scan(
		&d.ProfileID,
		&d.UserID,
		&d.FullName,
		&d.Specialization,
		&d.ConsultationFee,
		&d.Available,
		&hours,
		&d.AverageRating,
		&d.TotalReviews,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	if len(hours) > 0 {
		d.WorkingHours = append([]byte(nil), hours...)
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorUserID,
		&a.ScheduledAt,
		&a.Type,
		&a.Status,
		&a.ReminderSent,
		&a.Reminder24hSentAt,
		&a.Reminder1hSentAt,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := make([]Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, email, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetDoctorByProfileID(ctx context.Context, profileID uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+doctorColumns+doctorFrom+` WHERE d.id = $1`, profileID)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `SELECT `+doctorColumns+doctorFrom+` WHERE d.user_id = $1`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) SearchDoctors(ctx context.Context, f DoctorFilter) ([]Doctor, error) {
	var spec *string
	if f.Specialization != "" {
		pattern := "%" + escapeLike(f.Specialization) + "%"
		spec = &pattern
	}

	rows, err := r.db.Query(ctx, `SELECT `+doctorColumns+doctorFrom+`
		WHERE ($1::bool = false OR d.available_for_consultation)
		  AND ($2::text IS NULL OR d.specialization ILIKE $2 ESCAPE '\')
		  AND ($3::float8 IS NULL OR d.consultation_fee <= $3)
		  AND COALESCE(r.avg_rating, 0) >= $4
		ORDER BY d.full_name
	`, f.OnlyAvailable, spec, f.MaxFee, f.MinRating)
	if err != nil {
		return nil, fmt.Errorf("search doctors: %w", err)
	}
	defer rows.Close()

	doctors := make([]Doctor, 0)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doctors, nil
}

// likeEscaper makes user input match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctor(ctx context.Context, doctorUserID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_user_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status = ANY($4)
		ORDER BY scheduled_at
	`, doctorUserID, from, to, statusStrings(activeStatuses))
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, n NewAppointment) (*Appointment, error) {
	id := uuid.New()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_user_id, scheduled_at, appointment_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', now(), now())
		RETURNING `+appointmentColumns,
		id, n.PatientID, n.DoctorUserID, n.ScheduledAt, n.Type)

	a, err := scanAppointment(row)
	if db.IsUniqueViolation(err, activeSlotConstraint) {
		return nil, ErrSlotTaken
	}
	return a, err
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time, from []Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    status = 'rescheduled',
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, newAt, statusStrings(from))

	a, err := scanAppointment(row)
	if db.IsUniqueViolation(err, activeSlotConstraint) {
		return nil, ErrSlotTaken
	}
	return a, err
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, from []Status, reason *string) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns,
		id, string(to), statusStrings(from), reason)

	return scanAppointment(row)
}

func reminderColumn(tier ReminderTier) (string, error) {
	switch tier {
	case Tier24h:
		return "reminder_24h_sent_at", nil
	case Tier1h:
		return "reminder_1h_sent_at", nil
	}
	return "", fmt.Errorf("unknown reminder tier %q", tier)
}

func (r *PgRepository) FindReminderDue(ctx context.Context, tier ReminderTier, from, to time.Time) ([]Appointment, error) {
	col, err := reminderColumn(tier)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND `+col+` IS NULL
		  AND scheduled_at BETWEEN $1 AND $2
		ORDER BY scheduled_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("find %s reminders: %w", tier, err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, tier ReminderTier, at time.Time) error {
	col, err := reminderColumn(tier)
	if err != nil {
		return err
	}

	set := col + ` = $2`
	if tier == Tier24h {
		set += `, reminder_sent = true`
	}

	_, err = r.db.Exec(ctx, `
		UPDATE appointments
		SET `+set+`, updated_at = now()
		WHERE id = $1 AND `+col+` IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark %s reminder: %w", tier, err)
	}
	return nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, q PatientQuery) ([]PatientAppointment, int, error) {
	var status *string
	if q.Status != "" {
		s := string(q.Status)
		status = &s
	}

	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM appointments
		WHERE patient_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::timestamptz IS NULL OR scheduled_at >= $3)
	`, q.PatientID, status, q.UpcomingFrom).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count patient appointments: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_user_id, a.scheduled_at, a.appointment_type, a.status,
		       a.reminder_sent, a.reminder_24h_sent_at, a.reminder_1h_sent_at, a.cancel_reason,
		       a.created_at, a.updated_at,
		       d.id, d.full_name, d.specialization, d.consultation_fee
		FROM appointments a
		LEFT JOIN doctor_profiles d ON d.user_id = a.doctor_user_id
		WHERE a.patient_id = $1
		  AND ($2::text IS NULL OR a.status = $2)
		  AND ($3::timestamptz IS NULL OR a.scheduled_at >= $3)
		ORDER BY a.scheduled_at DESC
		LIMIT $4 OFFSET $5
	`, q.PatientID, status, q.UpcomingFrom, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patient appointments: %w", err)
	}
	defer rows.Close()

	items := make([]PatientAppointment, 0)
	for rows.Next() {
		var item PatientAppointment
		var (
			profileID *uuid.UUID
			name      *string
			spec      *string
			fee       *float64
		)
		a := &item.Appointment
		if err := rows.Scan(
			&a.ID, &a.PatientID, &a.DoctorUserID, &a.ScheduledAt, &a.Type, &a.Status,
			&a.ReminderSent, &a.Reminder24hSentAt, &a.Reminder1hSentAt, &a.CancelReason,
			&a.CreatedAt, &a.UpdatedAt,
			&profileID, &name, &spec, &fee,
		); err != nil {
			return nil, 0, fmt.Errorf("scan patient appointment: %w", err)
		}
		if profileID != nil {
			item.Doctor = &Doctor{ProfileID: *profileID, UserID: a.DoctorUserID}
			if name != nil {
				item.Doctor.FullName = *name
			}
			if spec != nil {
				item.Doctor.Specialization = *spec
			}
			if fee != nil {
				item.Doctor.ConsultationFee = *fee
			}
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PgRepository) CountByStatus(ctx context.Context, monthStart time.Time) (StatusCounts, error) {
	var c StatusCounts
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)::int,
		       COUNT(*) FILTER (WHERE status = 'scheduled')::int,
		       COUNT(*) FILTER (WHERE status = 'completed')::int,
		       COUNT(*) FILTER (WHERE status = 'cancelled')::int,
		       COUNT(*) FILTER (WHERE created_at >= $1)::int
		FROM appointments
	`, monthStart).Scan(&c.Total, &c.Scheduled, &c.Completed, &c.Cancelled, &c.Monthly)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("count appointments: %w", err)
	}
	return c, nil
}

func (r *PgRepository) TopDoctors(ctx context.Context, limit int) ([]DoctorCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT doctor_user_id, COUNT(*)::int AS appointment_count
		FROM appointments
		GROUP BY doctor_user_id
		ORDER BY appointment_count DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top doctors: %w", err)
	}
	defer rows.Close()

	out := make([]DoctorCount, 0)
	for rows.Next() {
		var dc DoctorCount
		if err := rows.Scan(&dc.DoctorUserID, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
