// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package metrics provides Prometheus instrumentation for the engine:
// recommendation throughput and latency, scorer fallbacks, safety
// corrections, feedback processing, and profile store operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation pipeline metrics
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_recommendations_total",
			Help: "Total number of recommendations generated",
		},
		[]string{"type", "risk", "source"}, // source: "scorer" or "fallback"
	)

	RecommendationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coach_recommendation_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ScorerFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_scorer_fallbacks_total",
			Help: "Total number of rule-based fallbacks by cause",
		},
		[]string{"cause"}, // "timeout", "error", "malformed", "unconfigured"
	)

	ScorerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coach_scorer_duration_seconds",
			Help:    "Pluggable scorer call latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Safety validator metrics
	SafetyCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_safety_corrections_total",
			Help: "Total number of safety corrections applied by bound",
		},
		[]string{"bound"}, // "load_increase", "rep_floor", "rest_floor", "volume_increase", "session_extension", "strain_downgrade", "form_retype"
	)

	// Feedback processing metrics
	FeedbackEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_feedback_events_total",
			Help: "Total number of feedback events processed by outcome",
		},
		[]string{"outcome"}, // "accepted", "modified", "skipped", "duplicate", "rejected"
	)

	FeedbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coach_feedback_duration_seconds",
			Help:    "Feedback processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Profile store metrics
	ProfileStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_profile_store_operations_total",
			Help: "Total number of profile store operations",
		},
		[]string{"operation", "status"}, // operation: "load", "save"; status: "ok", "error", "default"
	)

	ProfileStoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coach_profile_store_duration_seconds",
			Help:    "Profile store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics (model scorer client)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coach_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Audit pipeline metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_audit_events_total",
			Help: "Total number of audit events by disposition",
		},
		[]string{"disposition"}, // "published", "dropped", "persisted"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coach_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coach_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)
)

// ObserveScorerCall records a scorer call duration.
func ObserveScorerCall(start time.Time) {
	ScorerDuration.Observe(time.Since(start).Seconds())
}

// ObserveStoreOp records a profile store operation with status and duration.
func ObserveStoreOp(operation, status string, start time.Time) {
	ProfileStoreOps.WithLabelValues(operation, status).Inc()
	ProfileStoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
