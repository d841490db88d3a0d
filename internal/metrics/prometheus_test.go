package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Issued("signup_token")
	m.Issued("signup_token")
	m.Validated("refresh_token", "EXPIRED")
	m.Signup("VALID")
	m.Revoked("api_key")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("signup_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenValidationsTotal.WithLabelValues("refresh_token", "EXPIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SignupsTotal.WithLabelValues("VALID")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Issued("x")
		m.Validated("x", "y")
		m.Signup("z")
		m.Revoked("x")
	})
}
