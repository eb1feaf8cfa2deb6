package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters and histograms for the booking workflow.
type BookingMetrics struct {
	requestsTotal   *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	deletionsTotal  *prometheus.CounterVec
	confirmLatency  prometheus.Histogram
	slotCacheLookup *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "booking",
			Name:      "requests_submitted_total",
			Help:      "Total meeting requests submitted",
		}, []string{"status"}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "booking",
			Name:      "decisions_total",
			Help:      "Total administrator decisions on meeting requests",
		}, []string{"outcome"}),
		deletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "booking",
			Name:      "meetings_deleted_total",
			Help:      "Total confirmed meetings deleted",
		}, []string{"mode"}),
		confirmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "booking",
			Name:      "confirm_duration_seconds",
			Help:      "Latency of request confirmation excluding the refresh grace period",
			Buckets:   prometheus.DefBuckets,
		}),
		slotCacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "availability",
			Name:      "slot_cache_lookups_total",
			Help:      "Slot list cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.decisionsTotal, m.deletionsTotal, m.confirmLatency, m.slotCacheLookup)
	return m
}

// ObserveSubmitted counts a submission attempt; status is "accepted" or an error kind.
func (m *BookingMetrics) ObserveSubmitted(status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(status).Inc()
}

// ObserveDecision counts a confirm or reject outcome such as "confirmed",
// "rejected" or "conflict".
func (m *BookingMetrics) ObserveDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveDeleted(mode string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.deletionsTotal.WithLabelValues(mode).Add(float64(count))
}

func (m *BookingMetrics) ObserveConfirmLatency(seconds float64) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveSlotCache(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.slotCacheLookup.WithLabelValues(label).Inc()
}
