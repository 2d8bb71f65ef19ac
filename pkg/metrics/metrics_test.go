package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordProviderCall("anthropic", "success", time.Second, 0.02)
	m.RecordProviderCall("anthropic", "success", time.Second, 0.01)
	m.RecordProviderCall("google", "failure", time.Second, 0)
	m.RecordRound(true)
	m.RecordGate("security_scan", false, 0.5)
	m.RecordReviewFallback("missing_credential")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("anthropic", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("google", "failure")))
	assert.InDelta(t, 0.03, testutil.ToFloat64(m.providerCost.WithLabelValues("anthropic")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rounds.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gateRuns.WithLabelValues("security_scan", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reviewFallbacks.WithLabelValues("missing_credential")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProviderCall("x", "success", time.Second, 1)
		m.RecordRound(false)
		m.RecordGate("g", true, 1)
		m.RecordReviewFallback("r")
	})
}
