package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking, lifecycle and queue flows.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	recomputeTotal     *prometheus.CounterVec
	recomputeLatency   prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
	queueWaiting       *prometheus.GaugeVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Create and reschedule requests by outcome",
		}, []string{"operation", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Lifecycle events by outcome",
		}, []string{"event", "outcome"}),
		recomputeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "queue",
			Name:      "recompute_total",
			Help:      "Department queue recomputes by outcome",
		}, []string{"outcome"}),
		recomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "queue",
			Name:      "recompute_latency_seconds",
			Help:      "Latency of a department queue recompute",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Patient notifications by kind and outcome",
		}, []string{"kind", "outcome"}),
		queueWaiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "queue",
			Name:      "checked_in",
			Help:      "Patients currently checked in, per department",
		}, []string{"department"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.recomputeTotal, m.recomputeLatency, m.notificationsTotal, m.queueWaiting)
	return m
}

// Outcome maps an error to a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func (m *BookingMetrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *BookingMetrics) ObserveRecompute(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.recomputeTotal.WithLabelValues(outcome).Inc()
	m.recomputeLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) SetCheckedIn(department string, n int) {
	if m == nil {
		return
	}
	m.queueWaiting.WithLabelValues(department).Set(float64(n))
}
