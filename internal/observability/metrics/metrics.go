package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking desk flows.
type BookingMetrics struct {
	availabilityTotal   *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
	submissionsTotal    *prometheus.CounterVec
	pushEventsTotal     *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "randevu",
			Subsystem: "booking",
			Name:      "availability_fetch_total",
			Help:      "Availability fetches by outcome (ok, error, stale)",
		}, []string{"outcome"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "randevu",
			Subsystem: "booking",
			Name:      "availability_fetch_seconds",
			Help:      "Latency of availability fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "randevu",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Appointment submissions by mode and outcome",
		}, []string{"mode", "outcome"}),
		pushEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "randevu",
			Subsystem: "push",
			Name:      "events_total",
			Help:      "Push invalidation events received by entity",
		}, []string{"entity"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.availabilityTotal, m.availabilityLatency, m.submissionsTotal, m.pushEventsTotal)
	return m
}

func (m *BookingMetrics) ObserveAvailability(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(outcome).Inc()
	m.availabilityLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveSubmission(mode, outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(mode, outcome).Inc()
}

func (m *BookingMetrics) ObservePushEvent(entity string) {
	if m == nil {
		return
	}
	if entity == "" {
		entity = "unknown"
	}
	m.pushEventsTotal.WithLabelValues(entity).Inc()
}
