package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts outcomes of the sign-up, verification and sign-in flows.
// A nil *Metrics records nothing.
type Metrics struct {
	Registrations *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	SignIns       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystery_message_registrations_total",
				Help: "Total number of registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		Verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystery_message_verifications_total",
				Help: "Total number of verification attempts by outcome",
			},
			[]string{"outcome"},
		),
		SignIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mystery_message_sign_ins_total",
				Help: "Total number of sign-in attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.Registrations, m.Verifications, m.SignIns)

	return m
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}

func (m *Metrics) observeRegistration(err error) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *Metrics) observeVerification(outcome Outcome, err error) {
	if m == nil {
		return
	}
	label := outcome.String()
	if err != nil && KindOf(err) != KindInvalidCode && KindOf(err) != KindExpiredCode {
		label = string(KindOf(err))
	}
	m.Verifications.WithLabelValues(label).Inc()
}

func (m *Metrics) observeSignIn(err error) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(outcomeLabel(err)).Inc()
}
