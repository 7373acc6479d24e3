// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation serving
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_recommend_requests_total",
			Help: "Recommendation requests by experiment group and outcome",
		},
		[]string{"group", "outcome"}, // outcome: ok, cached, underfilled, insufficient, canceled, error
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kgrec_recommend_duration_seconds",
			Help:    "End-to-end recommendation latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"group"},
	)

	RecommendShortfall = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kgrec_recommend_shortfall_items_total",
			Help: "Items missing from under-filled responses",
		},
	)

	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_candidates_dropped_total",
			Help: "Candidates dropped during filtering",
		},
		[]string{"reason"}, // unnamed, placeholder, missing_attributes, zero_price
	)

	// Cache
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_cache_requests_total",
			Help: "Response cache lookups by backend and result",
		},
		[]string{"backend", "result"}, // hit, miss, error
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_cache_writes_total",
			Help: "Response cache writes by backend and result",
		},
		[]string{"backend", "result"},
	)

	// Graph store
	GraphQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kgrec_graph_query_duration_seconds",
			Help:    "Graph store call latency including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	GraphQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_graph_query_errors_total",
			Help: "Graph store calls that failed after all attempts",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kgrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Path sampling
	PathSampleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgrec_path_sample_duration_seconds",
			Help:    "Time spent sampling explanation paths for one user-item pair",
			Buckets: prometheus.DefBuckets,
		},
	)

	PathsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgrec_paths_returned",
			Help:    "Explanation paths returned per user-item pair",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)

	// Model
	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kgrec_model_version",
			Help: "Version of the embedding snapshot currently served",
		},
	)

	ModelReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgrec_model_reloads_total",
			Help: "Embedding snapshot reload attempts",
		},
		[]string{"result"},
	)

	TrainingEpochLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kgrec_training_epoch_loss",
			Help: "Average BPR loss of the most recent training epoch",
		},
	)

	// HTTP
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kgrec_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRecommend records one served request.
func RecordRecommend(group, outcome string, duration time.Duration) {
	RecommendRequests.WithLabelValues(group, outcome).Inc()
	RecommendDuration.WithLabelValues(group).Observe(duration.Seconds())
}

// RecordGraphQuery records a graph store call.
func RecordGraphQuery(operation string, duration time.Duration, err error) {
	GraphQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		GraphQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCacheLookup records a cache read.
func RecordCacheLookup(backend string, hit bool, err error) {
	switch {
	case err != nil:
		CacheRequests.WithLabelValues(backend, "error").Inc()
	case hit:
		CacheRequests.WithLabelValues(backend, "hit").Inc()
	default:
		CacheRequests.WithLabelValues(backend, "miss").Inc()
	}
}

// RecordCacheWrite records a cache write.
func RecordCacheWrite(backend string, err error) {
	if err != nil {
		CacheWrites.WithLabelValues(backend, "error").Inc()
		return
	}
	CacheWrites.WithLabelValues(backend, "ok").Inc()
}
