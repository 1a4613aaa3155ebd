package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulingMetrics exposes counters/histograms for the booking workflows,
// the reminder sweep and the notification outbox.
type SchedulingMetrics struct {
	workflowTotal     *prometheus.CounterVec
	remindersTotal    *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	deliveryTotal     *prometheus.CounterVec
	slotQueryLatency  *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		workflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "appointments",
			Name:      "workflow_total",
			Help:      "Booking, reschedule and cancel attempts by outcome",
		}, []string{"workflow", "outcome"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder notifications emitted per tier",
		}, []string{"tier"}),
		notificationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "notifications",
			Name:      "enqueued_total",
			Help:      "Notifications written to the outbox",
		}, []string{"type", "status"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Outbox deliveries by result",
		}, []string{"status"}),
		slotQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "availability",
			Name:      "slot_query_seconds",
			Help:      "Latency of slot generation including the appointment lookup",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.workflowTotal, m.remindersTotal, m.notificationTotal, m.deliveryTotal, m.slotQueryLatency)
	return m
}

func (m *SchedulingMetrics) ObserveWorkflow(workflow, outcome string) {
	if m == nil {
		return
	}
	m.workflowTotal.WithLabelValues(workflow, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveReminders(tier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.remindersTotal.WithLabelValues(tier).Add(float64(n))
}

func (m *SchedulingMetrics) ObserveNotification(kind string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.notificationTotal.WithLabelValues(kind, status).Inc()
}

func (m *SchedulingMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveSlotQuery(kind string, started time.Time) {
	if m == nil {
		return
	}
	m.slotQueryLatency.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
