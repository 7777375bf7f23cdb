package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntakeMetrics exposes counters/histograms for the intake wizard.
type IntakeMetrics struct {
	sessionsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	draftOpsTotal      *prometheus.CounterVec
	generationsTotal   *prometheus.CounterVec
	generationDuration prometheus.Histogram
	activeSessions     prometheus.Gauge
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "sessions_total",
			Help:      "Intake sessions by lifecycle event",
		}, []string{"event"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "step_transitions_total",
			Help:      "Wizard step transitions by direction and outcome",
		}, []string{"direction", "result"}),
		draftOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "draft_operations_total",
			Help:      "Draft store operations",
		}, []string{"op", "result"}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "generations_total",
			Help:      "PDF generation attempts",
		}, []string{"result"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "generation_duration_seconds",
			Help:      "Latency of PDF generation",
			Buckets:   prometheus.DefBuckets,
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cardio",
			Subsystem: "intake",
			Name:      "active_sessions",
			Help:      "Intake sessions currently held in memory",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsTotal, m.transitionsTotal, m.draftOpsTotal, m.generationsTotal, m.generationDuration, m.activeSessions)
	return m
}

func (m *IntakeMetrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(event).Inc()
}

func (m *IntakeMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *IntakeMetrics) ObserveTransition(direction string, moved bool) {
	if m == nil {
		return
	}
	result := "moved"
	if !moved {
		result = "blocked"
	}
	m.transitionsTotal.WithLabelValues(direction, result).Inc()
}

func (m *IntakeMetrics) ObserveDraft(op, result string) {
	if m == nil {
		return
	}
	m.draftOpsTotal.WithLabelValues(op, result).Inc()
}

func (m *IntakeMetrics) ObserveGeneration(result string, seconds float64) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(result).Inc()
	m.generationDuration.Observe(seconds)
}
