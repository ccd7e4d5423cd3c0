package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters for the onboarding engines. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions  *prometheus.CounterVec
	reservations *prometheus.CounterVec
	submissions  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach_onboarding",
			Subsystem: "pipeline",
			Name:      "transitions_total",
			Help:      "Prospect pipeline transitions by action and outcome",
		}, []string{"action", "outcome"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach_onboarding",
			Subsystem: "slot",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coach_onboarding",
			Subsystem: "survey",
			Name:      "submissions_total",
			Help:      "Survey submissions by score mode and outcome",
		}, []string{"score_mode", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.reservations, m.submissions)
	return m
}

func (m *Metrics) ObserveTransition(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSubmission(scoreMode, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(scoreMode, outcome).Inc()
}
