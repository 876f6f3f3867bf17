// Package metrics holds the prometheus collectors for pipeline stages and
// external provider calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
)

const namespace = "topic_research"

// Call outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeOpen    = "circuit_open"
)

var (
	// stageDuration measures pipeline stage latency.
	// Labels: stage, status (complete, skipped, failed)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"stage", "status"})

	// externalCalls counts calls to search, scrape and model providers.
	// Labels: provider, op, outcome
	externalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Total external provider calls by outcome",
	}, []string{"provider", "op", "outcome"})

	// cacheHits counts adapter cache hits.
	// Labels: op (search, scrape)
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "evidence",
		Name:      "cache_hits_total",
		Help:      "Total evidence cache hits",
	}, []string{"op"})

	// dedupDropped counts pages dropped as duplicates.
	// Labels: key (url, title)
	dedupDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multipass",
		Name:      "dedup_dropped_total",
		Help:      "Total pages dropped as duplicates",
	}, []string{"key"})
)

// ObserveStage records one stage run.
func ObserveStage(stage, status string, d time.Duration) {
	stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// RecordCall counts one external call.
func RecordCall(provider, op, outcome string) {
	externalCalls.WithLabelValues(provider, op, outcome).Inc()
}

// RecordCacheHit counts one adapter cache hit.
func RecordCacheHit(op string) {
	cacheHits.WithLabelValues(op).Inc()
}

// RecordDedupDropped counts n duplicates dropped on the given key.
func RecordDedupDropped(key string, n int) {
	if n <= 0 {
		return
	}
	dedupDropped.WithLabelValues(key).Add(float64(n))
}

// WriteTextfile writes the default registry in text exposition format,
// for pickup by a node_exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
