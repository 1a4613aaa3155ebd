package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

func TestSchedulingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)

	m.ObserveWorkflow("book", "created")
	m.ObserveWorkflow("book", "created")
	m.ObserveWorkflow("book", "conflict")
	m.ObserveReminders("24h", 4)
	m.ObserveReminders("1h", 0)
	m.ObserveNotification("appointment_booked", true)
	m.ObserveNotification("appointment_booked", false)
	m.ObserveDelivery("delivered")
	m.ObserveSlotQuery("day", time.Now().Add(-10*time.Millisecond))

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, families, "scheduling_appointments_workflow_total", map[string]string{"workflow": "book", "outcome": "created"}))
	assert.Equal(t, 1.0, counterValue(t, families, "scheduling_appointments_workflow_total", map[string]string{"workflow": "book", "outcome": "conflict"}))
	assert.Equal(t, 4.0, counterValue(t, families, "scheduling_reminders_sent_total", map[string]string{"tier": "24h"}))
	assert.Equal(t, 0.0, counterValue(t, families, "scheduling_reminders_sent_total", map[string]string{"tier": "1h"}))
	assert.Equal(t, 1.0, counterValue(t, families, "scheduling_notifications_enqueued_total", map[string]string{"type": "appointment_booked", "status": "error"}))
	assert.Equal(t, 1.0, counterValue(t, families, "scheduling_notifications_delivered_total", map[string]string{"status": "delivered"}))
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveWorkflow("cancel", "ok")
	m.ObserveReminders("24h", 1)
	m.ObserveNotification("x", true)
	m.ObserveDelivery("failed")
	m.ObserveSlotQuery("day", time.Now())
}
