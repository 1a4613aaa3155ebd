package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithDB(mock)
	ctx := context.Background()
	user := uuid.New()
	appt := uuid.New()

	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), user, pgxmock.AnyArg(), TypeAppointmentBooked, "normal", "Your appointment is booked").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	id, err := store.Enqueue(ctx, Message{UserID: user, AppointmentID: &appt, Type: TypeAppointmentBooked, Body: "Your appointment is booked"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "user_id", "appointment_id", "notification_type", "priority", "message", "attempts", "created_at"}).
		AddRow(id, user, &appt, TypeAppointmentBooked, "high", "Your appointment is booked", 1, now)
	mock.ExpectQuery("SELECT id, user_id").WithArgs(int32(10), 10).WillReturnRows(rows)

	msgs, err := store.FetchPending(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, PriorityHigh, msgs[0].Priority)
	assert.Equal(t, appt, *msgs[0].AppointmentID)
	assert.Equal(t, 1, msgs[0].Attempts)

	mock.ExpectExec("UPDATE notifications").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE notifications").WithArgs(id, "queue down").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkFailed(ctx, id, errors.New("queue down")))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreEnqueueError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newStoreWithDB(mock)
	mock.ExpectExec("INSERT INTO notifications").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err = store.Enqueue(context.Background(), Message{UserID: uuid.New(), Type: TypeReminder, Priority: PriorityUrgent})
	assert.ErrorContains(t, err, "connection reset")
}

type memoryOutbox struct {
	pending   []Message
	delivered []uuid.UUID
	failed    []uuid.UUID
}

func (m *memoryOutbox) FetchPending(_ context.Context, limit int32, maxAttempts int) ([]Message, error) {
	out := make([]Message, 0, len(m.pending))
	for _, msg := range m.pending {
		if msg.Attempts < maxAttempts && len(out) < int(limit) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memoryOutbox) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	m.delivered = append(m.delivered, id)
	return true, nil
}

func (m *memoryOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

type recordingHandler struct {
	fail map[uuid.UUID]bool
	seen []uuid.UUID
}

func (h *recordingHandler) Handle(_ context.Context, msg Message) error {
	h.seen = append(h.seen, msg.ID)
	if h.fail[msg.ID] {
		return errors.New("transport unavailable")
	}
	return nil
}

func TestDelivererDrain(t *testing.T) {
	ok1, bad, parked := uuid.New(), uuid.New(), uuid.New()
	store := &memoryOutbox{pending: []Message{
		{ID: ok1, Type: TypeReminder},
		{ID: bad, Type: TypeReminder},
		{ID: parked, Type: TypeReminder, Attempts: 10},
	}}
	handler := &recordingHandler{fail: map[uuid.UUID]bool{bad: true}}

	core, logs := observer.New(zap.InfoLevel)
	d := NewDeliverer(store, handler, zap.New(core)).WithBatchSize(5)

	n := d.Drain(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, []uuid.UUID{ok1, bad}, handler.seen)
	assert.Equal(t, []uuid.UUID{ok1}, store.delivered)
	assert.Equal(t, []uuid.UUID{bad}, store.failed)
	assert.Equal(t, 1, logs.FilterMessage("outbox delivery failed").Len())
}

func TestDelivererStartStopsOnCancel(t *testing.T) {
	store := &memoryOutbox{pending: []Message{{ID: uuid.New()}}}
	d := NewDeliverer(store, &recordingHandler{}, nil).WithInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deliverer did not stop")
	}
	assert.NotEmpty(t, store.delivered)
}

type fakeSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.local/000000000000/notifications")

	msg := Message{ID: uuid.New(), UserID: uuid.New(), Type: TypeReminder, Priority: PriorityUrgent, Body: "Starts in 1 hour"}
	require.NoError(t, pub.Handle(context.Background(), msg))

	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.local/000000000000/notifications", aws.ToString(client.input.QueueUrl))
	assert.Contains(t, aws.ToString(client.input.MessageBody), `"notification_type":"appointment_reminder"`)
	assert.Equal(t, "urgent", aws.ToString(client.input.MessageAttributes["priority"].StringValue))

	client.err = errors.New("throttled")
	assert.ErrorContains(t, pub.Handle(context.Background(), msg), "throttled")
}

func TestLogHandler(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	appt := uuid.New()
	h := NewLogHandler(zap.New(core))

	require.NoError(t, h.Handle(context.Background(), Message{ID: uuid.New(), AppointmentID: &appt, Type: TypeAppointmentCancelled}))
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, appt.String(), entries[0].ContextMap()["appointment_id"])
}
