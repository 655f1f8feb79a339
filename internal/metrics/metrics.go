// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the resolution pipeline.
type Metrics struct {
	ResolveTotal       *prometheus.CounterVec
	ResolveDuration    *prometheus.HistogramVec
	SourceSearches     *prometheus.CounterVec
	SourceCandidates   *prometheus.HistogramVec
	CacheEvents        *prometheus.CounterVec
	AvailabilityChecks *prometheus.CounterVec
}

// New creates and registers the resolver metrics. Call once per process.
func New() *Metrics {
	return &Metrics{
		ResolveTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streambrr_resolve_total",
			Help: "Total number of resolution requests by media type and outcome",
		}, []string{"media_type", "outcome"}),
		ResolveDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streambrr_resolve_duration_seconds",
			Help:    "End to end resolution latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"media_type"}),
		SourceSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streambrr_source_search_total",
			Help: "Total number of source searches by source and outcome",
		}, []string{"source", "outcome"}),
		SourceCandidates: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streambrr_source_candidates",
			Help:    "Candidates returned per source search",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 200},
		}, []string{"source"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streambrr_result_cache_events_total",
			Help: "Result cache activity by event",
		}, []string{"event"}),
		AvailabilityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "streambrr_availability_checks_total",
			Help: "Debrid availability checks by outcome",
		}, []string{"outcome"}),
	}
}
