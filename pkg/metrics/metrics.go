package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowengine"

// Metrics holds the collectors for generation rounds and gate runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	providerCost     *prometheus.CounterVec
	rounds           *prometheus.CounterVec
	gateRuns         *prometheus.CounterVec
	gateScore        *prometheus.HistogramVec
	reviewFallbacks  *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// Labels: provider, status (success, failure, transient)
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider generation calls by outcome",
		}, []string{"provider", "status"}),
		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "duration_seconds",
			Help:      "Provider generation call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		providerCost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Cost of successful provider calls in USD",
		}, []string{"provider"}),
		// Labels: status (success, failure)
		rounds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "rounds_total",
			Help:      "Generation rounds by outcome",
		}, []string{"status"}),
		// Labels: gate, result (passed, failed)
		gateRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "runs_total",
			Help:      "Gate evaluations by result",
		}, []string{"gate", "result"}),
		gateScore: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "score",
			Help:      "Distribution of gate scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 1.0},
		}, []string{"gate"}),
		// Labels: reason (missing_credential, client_error, remote_error, malformed_response)
		reviewFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "review",
			Name:      "fallbacks_total",
			Help:      "Reviews answered by the heuristic scorer",
		}, []string{"reason"}),
	}
}

// RecordProviderCall records one provider call.
func (m *Metrics) RecordProviderCall(provider, status string, duration time.Duration, cost float64) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, status).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if cost > 0 {
		m.providerCost.WithLabelValues(provider).Add(cost)
	}
}

// RecordRound records the outcome of a generation round.
func (m *Metrics) RecordRound(success bool) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(statusLabel(success)).Inc()
}

// RecordGate records one gate evaluation.
func (m *Metrics) RecordGate(gate string, passed bool, score float64) {
	if m == nil {
		return
	}
	result := "failed"
	if passed {
		result = "passed"
	}
	m.gateRuns.WithLabelValues(gate, result).Inc()
	m.gateScore.WithLabelValues(gate).Observe(score)
}

// RecordReviewFallback records a heuristic substitution for a remote review.
func (m *Metrics) RecordReviewFallback(reason string) {
	if m == nil {
		return
	}
	m.reviewFallbacks.WithLabelValues(reason).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
