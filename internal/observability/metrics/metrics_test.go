package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveOperation("create", "ok")
	m.ObserveOperation("create", "conflict")
	m.ObserveOperation("create", "conflict")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create", "conflict")))
}

func TestNotificationMetricsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)
	m.ObserveDelivery("reminder_24h", "email", "sent")
	m.ObserveDelivery("reminder_24h", "sms", "failed")
	m.ObserveDelivery("confirmation", "email", "sent")
	m.ObservePass("day_ahead", 20*time.Millisecond, nil)
	m.ObservePass("same_day", time.Millisecond, errors.New("boom"))
	m.ObserveQueueOverflow()

	stats := SnapshotDeliveries(reg)
	assert.Equal(t, 3.0, stats.Total)
	assert.Equal(t, 2.0, stats.ByStatus["sent"])
	assert.Equal(t, 1.0, stats.ByKind["reminder_24h"]["failed"])
	assert.Equal(t, 2.0, stats.ByChannel["email"]["sent"])
}

func TestSnapshotWithoutFamily(t *testing.T) {
	stats := SnapshotDeliveries(prometheus.NewRegistry())
	assert.Zero(t, stats.Total)
	assert.NotNil(t, stats.ByStatus)
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveOperation("create", "ok")
	var n *NotificationMetrics
	n.ObserveDelivery("k", "c", "s")
	n.ObserveQueueOverflow()
	n.ObservePass("p", time.Second, nil)
}
