package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the ledger and dialogue.
type BookingMetrics struct {
	commitsTotal         *prometheus.CounterVec
	reschedulesTotal     *prometheus.CounterVec
	rescheduleGapTotal   prometheus.Counter
	auditFailuresTotal   prometheus.Counter
	turnsTotal           *prometheus.CounterVec
	turnLatency          *prometheus.HistogramVec
	collaboratorFailures *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "ledger",
			Name:      "commits_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"kind", "outcome"}),
		reschedulesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "ledger",
			Name:      "reschedules_total",
			Help:      "Reschedule attempts by outcome",
		}, []string{"outcome"}),
		rescheduleGapTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "ledger",
			Name:      "reschedule_gap_total",
			Help:      "Reschedules that committed the new slot but could not free the old one",
		}),
		auditFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "ledger",
			Name:      "audit_failures_total",
			Help:      "Audit mirror writes that failed after a ledger change",
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Dialogue turns by resulting state",
		}, []string{"state"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hospital",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one dialogue turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		collaboratorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Name:      "collaborator_failures_total",
			Help:      "Failures of external collaborators",
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.commitsTotal,
		m.reschedulesTotal,
		m.rescheduleGapTotal,
		m.auditFailuresTotal,
		m.turnsTotal,
		m.turnLatency,
		m.collaboratorFailures,
	)
	return m
}

func (m *BookingMetrics) ObserveCommit(kind, outcome string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) ObserveReschedule(outcome string) {
	if m == nil {
		return
	}
	m.reschedulesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRescheduleGap counts a reschedule that left both slots held.
func (m *BookingMetrics) ObserveRescheduleGap() {
	if m == nil {
		return
	}
	m.rescheduleGapTotal.Inc()
}

func (m *BookingMetrics) ObserveAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailuresTotal.Inc()
}

func (m *BookingMetrics) ObserveTurn(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

func (m *BookingMetrics) ObserveCollaboratorFailure(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(collaborator).Inc()
}
