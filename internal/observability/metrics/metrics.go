package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic"

// BookingMetrics counts booking engine operations by outcome.
type BookingMetrics struct {
	operations *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// NotificationMetrics covers deliveries, queue pressure and reminder passes.
type NotificationMetrics struct {
	deliveries   *prometheus.CounterVec
	queueDropped prometheus.Counter
	passDuration *prometheus.HistogramVec
	passSent     *prometheus.CounterVec
}

// DeliveriesMetricName is the fully-qualified delivery counter, read back by
// the stats snapshot.
const DeliveriesMetricName = namespace + "_notifications_deliveries_total"

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by kind, channel and status",
		}, []string{"kind", "channel", "status"}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_overflow_total",
			Help:      "Intents delivered outside the worker pool because the queue was full",
		}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reminder passes",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pass"}),
		passSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "pass_runs_total",
			Help:      "Reminder pass runs by pass and result",
		}, []string{"pass", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveries, m.queueDropped, m.passDuration, m.passSent)
	return m
}

func (m *NotificationMetrics) ObserveDelivery(kind, channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(kind, channel, status).Inc()
}

func (m *NotificationMetrics) ObserveQueueOverflow() {
	if m == nil {
		return
	}
	m.queueDropped.Inc()
}

func (m *NotificationMetrics) ObservePass(pass string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
	m.passSent.WithLabelValues(pass, result).Inc()
}
