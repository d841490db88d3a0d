package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Metrics holds the credential counters. A nil *Metrics records nothing, so
// services can run without a registry in tests.
type Metrics struct {
	TokensIssuedTotal     *prometheus.CounterVec
	TokenValidationsTotal *prometheus.CounterVec
	SignupsTotal          *prometheus.CounterVec
	RevocationsTotal      *prometheus.CounterVec
}

// New creates the metrics and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idcore_tokens_issued_total",
			Help: "Total number of credentials issued, by kind.",
		}, []string{"kind"}),
		TokenValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idcore_token_validations_total",
			Help: "Total number of credential validations, by kind and outcome.",
		}, []string{"kind", "status"}),
		SignupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idcore_signups_total",
			Help: "Total number of signup attempts, by outcome.",
		}, []string{"status"}),
		RevocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idcore_revocations_total",
			Help: "Total number of credentials revoked or expired on purpose, by kind.",
		}, []string{"kind"}),
	}

	if reg == nil {
		log.Debug().Msg("Prometheus registry is nil, metrics are not exported.")
		return m
	}

	for _, c := range []prometheus.Collector{
		m.TokensIssuedTotal, m.TokenValidationsTotal, m.SignupsTotal, m.RevocationsTotal,
	} {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric")
		}
	}

	return m
}

func (m *Metrics) Issued(kind string) {
	if m != nil {
		m.TokensIssuedTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Validated(kind, status string) {
	if m != nil {
		m.TokenValidationsTotal.WithLabelValues(kind, status).Inc()
	}
}

func (m *Metrics) Signup(status string) {
	if m != nil {
		m.SignupsTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Revoked(kind string) {
	if m != nil {
		m.RevocationsTotal.WithLabelValues(kind).Inc()
	}
}
