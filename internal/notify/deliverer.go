package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/smart-appointment-scheduling/internal/observability/metrics"
	"github.com/hackgods/smart-appointment-scheduling/pkg/logging"
)

// Handler hands a notification to a downstream transport.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type outbox interface {
	FetchPending(ctx context.Context, limit int32, maxAttempts int) ([]Message, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// Deliverer polls the outbox and invokes the handler. Notifications that
// failed maxAttempts times are parked and no longer fetched.
type Deliverer struct {
	store       outbox
	handler     Handler
	logger      *zap.Logger
	metrics     *metrics.SchedulingMetrics
	batchSize   int32
	interval    time.Duration
	maxAttempts int
}

func NewDeliverer(store outbox, handler Handler, logger *zap.Logger) *Deliverer {
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logging.OrNop(logger),
		batchSize:   25,
		interval:    2 * time.Second,
		maxAttempts: 10,
	}
}

func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.SchedulingMetrics) *Deliverer {
	d.metrics = m
	return d
}

// Start drains the outbox every interval until ctx is done.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch and returns how many notifications were handed off.
func (d *Deliverer) Drain(ctx context.Context) int {
	msgs, err := d.store.FetchPending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, msg := range msgs {
		if err := d.handler.Handle(ctx, msg); err != nil {
			d.metrics.ObserveDelivery("failed")
			d.logger.Error("outbox delivery failed",
				zap.Error(err),
				zap.String("notification_id", msg.ID.String()),
				zap.String("type", msg.Type),
				zap.Int("attempts", msg.Attempts+1),
			)
			if markErr := d.store.MarkFailed(ctx, msg.ID, err); markErr != nil {
				d.logger.Error("failed to record delivery failure", zap.Error(markErr), zap.String("notification_id", msg.ID.String()))
			}
			continue
		}
		ok, err := d.store.MarkDelivered(ctx, msg.ID)
		if err != nil {
			d.logger.Error("failed to mark notification delivered", zap.Error(err), zap.String("notification_id", msg.ID.String()))
			continue
		}
		if ok {
			delivered++
			d.metrics.ObserveDelivery("delivered")
			d.logger.Debug("notification delivered", zap.String("notification_id", msg.ID.String()), zap.String("type", msg.Type))
		}
	}
	return delivered
}
