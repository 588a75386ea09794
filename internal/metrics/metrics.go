// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TreeOperations counts tree manager calls by operation and result kind.
	TreeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxonomy_tree_operations_total",
		Help: "Tree manager operations by operation and result",
	}, []string{"operation", "result"})

	// TreeOperationDuration tracks tree manager latency.
	TreeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxonomy_tree_operation_duration_seconds",
		Help:    "Tree manager operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	}, []string{"operation"})

	// ClosureRowsRewritten counts closure rows removed and added by re-parents.
	ClosureRowsRewritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxonomy_closure_rows_rewritten_total",
		Help: "Closure index rows removed or added while re-parenting",
	}, []string{"change"})

	// CacheLookups counts tree cache lookups by outcome.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxonomy_cache_lookups_total",
		Help: "Tree cache lookups by outcome",
	}, []string{"outcome"})

	// HTTPRequests counts served requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taxonomy_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taxonomy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveTreeOperation records one tree manager call.
func ObserveTreeOperation(operation, result string, started time.Time) {
	TreeOperations.WithLabelValues(operation, result).Inc()
	TreeOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
