// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

var (
	stageRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkflow_stage_runs_total",
		Help: "Stage runs by stage and outcome",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thinkflow_stage_duration_seconds",
		Help:    "Wall time of a stage from first pull to end of stream",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
	}, []string{"stage", "outcome"})

	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkflow_stage_chunks_total",
		Help: "Text chunks forwarded by stage",
	}, []string{"stage"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkflow_stage_bytes_total",
		Help: "Bytes of text forwarded by stage",
	}, []string{"stage"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thinkflow_relay_requests_total",
		Help: "Relay requests by caller surface and outcome",
	}, []string{"surface", "outcome"})
)

// ObserveStage records the end of a stage run.
func ObserveStage(stage, outcome string, d time.Duration) {
	stageRunsTotal.WithLabelValues(stage, outcome).Inc()
	stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// ObserveChunk records one forwarded chunk of n bytes.
func ObserveChunk(stage string, n int) {
	chunksTotal.WithLabelValues(stage).Inc()
	bytesTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveRequest records a finished relay request from surface
// ("openai", "anthropic", "gemini", "a2a").
func ObserveRequest(surface, outcome string) {
	requestsTotal.WithLabelValues(surface, outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
