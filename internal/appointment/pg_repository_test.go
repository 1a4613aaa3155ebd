package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentRowColumns = []string{
	"id", "patient_id", "doctor_user_id", "scheduled_at", "appointment_type", "status",
	"reminder_sent", "reminder_24h_sent_at", "reminder_1h_sent_at", "cancel_reason",
	"created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPgRepositoryWithDB(mock), mock
}

func appointmentRow(id, patient, doctor uuid.UUID, when time.Time, status Status) *pgxmock.Rows {
	return pgxmock.NewRows(appointmentRowColumns).AddRow(
		id, patient, doctor, when, "consultation", status,
		false, (*time.Time)(nil), (*time.Time)(nil), (*string)(nil),
		testNow, testNow,
	)
}

func TestPgRepositoryNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	id := uuid.New()

	mock.ExpectQuery("FROM users").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err := repo.GetUserByID(ctx, id)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	mock.ExpectQuery("FROM doctor_profiles").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetDoctorByProfileID(ctx, id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	mock.ExpectQuery("FROM appointments WHERE id").WithArgs(id).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetAppointmentByID(ctx, id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetDoctor(t *testing.T) {
	repo, mock := newMockRepo(t)
	profile, user := uuid.New(), uuid.New()
	hours := []byte(`{"monday": {"start": "10:00", "end": "14:00"}}`)

	rows := pgxmock.NewRows([]string{"id", "user_id", "full_name", "specialization", "consultation_fee",
		"available_for_consultation", "working_hours", "avg_rating", "total"}).
		AddRow(profile, user, "Rivera", "Cardiology", 120.0, true, hours, 4.5, 12)
	mock.ExpectQuery("LEFT JOIN LATERAL").WithArgs(user).WillReturnRows(rows)

	d, err := repo.GetDoctorByUserID(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, profile, d.ProfileID)
	assert.Equal(t, 4.5, d.AverageRating)
	assert.Equal(t, 12, d.TotalReviews)
	assert.JSONEq(t, string(hours), string(d.WorkingHours))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCreateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	patient, doctor := uuid.New(), uuid.New()
	when := at(monday, "09:00")

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), patient, doctor, when, "consultation").
		WillReturnRows(appointmentRow(uuid.New(), patient, doctor, when, StatusScheduled))

	a, err := repo.CreateAppointment(context.Background(), NewAppointment{
		PatientID: patient, DoctorUserID: doctor, ScheduledAt: when, Type: "consultation",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.True(t, a.ScheduledAt.Equal(when))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUniqueViolationIsSlotTaken(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	taken := &pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint}

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(taken)
	_, err := repo.CreateAppointment(ctx, NewAppointment{PatientID: uuid.New(), DoctorUserID: uuid.New(), ScheduledAt: testNow, Type: "consultation"})
	assert.ErrorIs(t, err, ErrSlotTaken)

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(taken)
	_, err = repo.RescheduleAppointment(ctx, uuid.New(), testNow, []Status{StatusScheduled})
	assert.ErrorIs(t, err, ErrSlotTaken)

	// other constraints are not a booking conflict
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"})
	_, err = repo.CreateAppointment(ctx, NewAppointment{PatientID: uuid.New(), DoctorUserID: uuid.New(), ScheduledAt: testNow, Type: "consultation"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotTaken))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryUpdateStatusGuard(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	reason := "travel"

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "cancelled", pgxmock.AnyArg(), &reason).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateStatus(context.Background(), id, StatusCancelled, activeStatuses, &reason)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryReminders(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()
	id := uuid.New()
	from, to := testNow.Add(45*time.Minute), testNow.Add(75*time.Minute)

	mock.ExpectQuery("reminder_1h_sent_at IS NULL").
		WithArgs(from, to).
		WillReturnRows(appointmentRow(id, uuid.New(), uuid.New(), testNow.Add(time.Hour), StatusScheduled))
	due, err := repo.FindReminderDue(ctx, Tier1h, from, to)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	mock.ExpectExec("reminder_24h_sent_at = \\$2, reminder_sent = true").
		WithArgs(id, testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.MarkReminderSent(ctx, id, Tier24h, testNow))

	_, err = repo.FindReminderDue(ctx, ReminderTier("weekly"), from, to)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCountByStatus(t *testing.T) {
	repo, mock := newMockRepo(t)
	monthStart := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FILTER").WithArgs(monthStart).
		WillReturnRows(pgxmock.NewRows([]string{"total", "scheduled", "completed", "cancelled", "monthly"}).
			AddRow(10, 4, 3, 3, 6))

	c, err := repo.CountByStatus(context.Background(), monthStart)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 10, Scheduled: 4, Completed: 3, Cancelled: 3, Monthly: 6}, c)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListByPatient(t *testing.T) {
	repo, mock := newMockRepo(t)
	patient, doctor, profile := uuid.New(), uuid.New(), uuid.New()
	name, spec, fee := "Rivera", "Cardiology", 120.0

	mock.ExpectQuery("SELECT COUNT").WithArgs(patient, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	rows := pgxmock.NewRows(append(append([]string{}, appointmentRowColumns...), "profile_id", "full_name", "specialization", "consultation_fee")).
		AddRow(uuid.New(), patient, doctor, testNow, "consultation", StatusScheduled,
			false, (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), testNow, testNow,
			&profile, &name, &spec, &fee).
		AddRow(uuid.New(), patient, uuid.New(), testNow, "checkup", StatusCancelled,
			false, (*time.Time)(nil), (*time.Time)(nil), (*string)(nil), testNow, testNow,
			(*uuid.UUID)(nil), (*string)(nil), (*string)(nil), (*float64)(nil))
	mock.ExpectQuery("LEFT JOIN doctor_profiles").WithArgs(patient, pgxmock.AnyArg(), pgxmock.AnyArg(), 10, 0).
		WillReturnRows(rows)

	items, total, err := repo.ListByPatient(context.Background(), PatientQuery{PatientID: patient, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Doctor)
	assert.Equal(t, "Rivera", items[0].Doctor.FullName)
	assert.Equal(t, doctor, items[0].Doctor.UserID)
	assert.Nil(t, items[1].Doctor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `ear\_nose`, escapeLike("ear_nose"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
	assert.Equal(t, "Cardiology", escapeLike("Cardiology"))
}

func TestPgRepositorySearchDoctorsEscapesSpecialization(t *testing.T) {
	repo, mock := newMockRepo(t)
	pattern := `%ear\_nose%`

	mock.ExpectQuery(`ILIKE \$2 ESCAPE`).
		WithArgs(true, &pattern, pgxmock.AnyArg(), 0.0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "full_name", "specialization", "consultation_fee",
			"available_for_consultation", "working_hours", "avg_rating", "total"}))

	doctors, err := repo.SearchDoctors(context.Background(), DoctorFilter{Specialization: "ear_nose", OnlyAvailable: true})
	require.NoError(t, err)
	assert.Empty(t, doctors)
	require.NoError(t, mock.ExpectationsWereMet())
}
