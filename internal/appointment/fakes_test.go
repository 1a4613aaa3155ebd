package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/config"
	"github.com/hackgods/smart-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/smart-appointment-scheduling/internal/redis"
	"github.com/hackgods/smart-appointment-scheduling/internal/schedule"
)

// Sunday 2030-01-06 10:00 UTC. The next day is a Monday.
var (
	testNow = time.Date(2030, time.January, 6, 10, 0, 0, 0, time.UTC)
	monday  = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)
)

func at(day time.Time, hhmm string) time.Time {
	return schedule.MustClock(hhmm).On(day)
}

type memRepo struct {
	mu           sync.Mutex
	users        map[uuid.UUID]User
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]*Appointment
	doctorCalls  int
	// forceTaken makes the next create/reschedule hit the unique index.
	forceTaken bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        map[uuid.UUID]User{},
		doctors:      map[uuid.UUID]Doctor{},
		appointments: map[uuid.UUID]*Appointment{},
	}
}

func (r *memRepo) addUser(name string) User {
	u := User{ID: uuid.New(), Username: name, CreatedAt: testNow}
	r.users[u.ID] = u
	return u
}

func (r *memRepo) addDoctor(name string, rating, fee float64, hours string) Doctor {
	u := r.addUser(strings.ToLower(name))
	d := Doctor{
		ProfileID:       uuid.New(),
		UserID:          u.ID,
		FullName:        name,
		Specialization:  "Cardiology",
		ConsultationFee: fee,
		Available:       true,
		AverageRating:   rating,
	}
	if hours != "" {
		d.WorkingHours = json.RawMessage(hours)
	}
	r.doctors[d.ProfileID] = d
	return d
}

func (r *memRepo) addAppointment(patient, doctorUser uuid.UUID, when time.Time, status Status) *Appointment {
	a := &Appointment{
		ID:           uuid.New(),
		PatientID:    patient,
		DoctorUserID: doctorUser,
		ScheduledAt:  when,
		Type:         "consultation",
		Status:       status,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	r.appointments[a.ID] = a
	return a
}

func (r *memRepo) get(id uuid.UUID) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.appointments[id]
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &u, nil
}

func (r *memRepo) GetDoctorByProfileID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctorCalls++
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) GetDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctorCalls++
	for _, d := range r.doctors {
		if d.UserID == userID {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *memRepo) SearchDoctors(_ context.Context, f DoctorFilter) ([]Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Doctor, 0)
	for _, d := range r.doctors {
		if f.OnlyAvailable && !d.Available {
			continue
		}
		if f.Specialization != "" && !strings.Contains(strings.ToLower(d.Specialization), strings.ToLower(f.Specialization)) {
			continue
		}
		if f.MaxFee != nil && d.ConsultationFee > *f.MaxFee {
			continue
		}
		if d.AverageRating < f.MinRating {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListActiveForDoctor(_ context.Context, doctorUserID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0)
	for _, a := range r.appointments {
		if a.DoctorUserID != doctorUserID || !a.Status.Active() {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *memRepo) takenLocked(doctorUserID uuid.UUID, when time.Time, except uuid.UUID) bool {
	if r.forceTaken {
		r.forceTaken = false
		return true
	}
	for _, a := range r.appointments {
		if a.ID != except && a.DoctorUserID == doctorUserID && a.Status.Active() && a.ScheduledAt.Equal(when) {
			return true
		}
	}
	return false
}

func (r *memRepo) CreateAppointment(_ context.Context, n NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takenLocked(n.DoctorUserID, n.ScheduledAt, uuid.Nil) {
		return nil, ErrSlotTaken
	}
	a := &Appointment{
		ID:           uuid.New(),
		PatientID:    n.PatientID,
		DoctorUserID: n.DoctorUserID,
		ScheduledAt:  n.ScheduledAt,
		Type:         n.Type,
		Status:       StatusScheduled,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	r.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func statusIn(s Status, from []Status) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func (r *memRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, newAt time.Time, from []Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || !statusIn(a.Status, from) {
		return nil, ErrAppointmentNotFound
	}
	if r.takenLocked(a.DoctorUserID, newAt, id) {
		return nil, ErrSlotTaken
	}
	a.ScheduledAt = newAt
	a.Status = StatusRescheduled
	cp := *a
	return &cp, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, to Status, from []Status, reason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || !statusIn(a.Status, from) {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.CancelReason = reason
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) FindReminderDue(_ context.Context, tier ReminderTier, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0)
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		if tier == Tier24h && a.Reminder24hSentAt != nil || tier == Tier1h && a.Reminder1hSentAt != nil {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *memRepo) MarkReminderSent(_ context.Context, id uuid.UUID, tier ReminderTier, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.appointments[id]
	ts := at
	switch tier {
	case Tier24h:
		a.ReminderSent = true
		a.Reminder24hSentAt = &ts
	case Tier1h:
		a.Reminder1hSentAt = &ts
	}
	return nil
}

func (r *memRepo) ListByPatient(_ context.Context, q PatientQuery) ([]PatientAppointment, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]PatientAppointment, 0)
	for _, a := range r.appointments {
		if a.PatientID != q.PatientID {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if q.UpcomingFrom != nil && a.ScheduledAt.Before(*q.UpcomingFrom) {
			continue
		}
		item := PatientAppointment{Appointment: *a}
		for _, d := range r.doctors {
			if d.UserID == a.DoctorUserID {
				d := d
				item.Doctor = &d
			}
		}
		all = append(all, item)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.After(all[j].ScheduledAt) })

	total := len(all)
	if q.Offset >= total {
		return []PatientAppointment{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return all[q.Offset:end], total, nil
}

func (r *memRepo) CountByStatus(_ context.Context, monthStart time.Time) (StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c StatusCounts
	for _, a := range r.appointments {
		c.Total++
		switch a.Status {
		case StatusScheduled:
			c.Scheduled++
		case StatusCompleted:
			c.Completed++
		case StatusCancelled:
			c.Cancelled++
		}
		if !a.CreatedAt.Before(monthStart) {
			c.Monthly++
		}
	}
	return c, nil
}

func (r *memRepo) TopDoctors(_ context.Context, limit int) ([]DoctorCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[uuid.UUID]int{}
	for _, a := range r.appointments {
		counts[a.DoctorUserID]++
	}
	out := make([]DoctorCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, DoctorCount{DoctorUserID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail bool
}

func (n *memNotifier) Enqueue(_ context.Context, msg notify.Message) (uuid.UUID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return uuid.Nil, errors.New("outbox unavailable")
	}
	msg.ID = uuid.New()
	n.msgs = append(n.msgs, msg)
	return msg.ID, nil
}

func (n *memNotifier) sent() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

type testEnv struct {
	svc      *Service
	repo     *memRepo
	notifier *memNotifier
	redis    *miniredis.Miniredis
	client   *redis.Client
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemRepo()
	notifier := &memNotifier{}
	locker := redisclient.NewRedisDoctorLocker(client, 2*time.Second, redisclient.WithRetry(2, time.Millisecond))

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	svc := NewService(repo, locker, notifier, schedule.DefaultConfig(), config.Config{}.Policy(), zap.NewNop(), opts...)

	return &testEnv{svc: svc, repo: repo, notifier: notifier, redis: mr, client: client}
}
