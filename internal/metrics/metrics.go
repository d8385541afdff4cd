// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hostingRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_admin_hosting_request_duration_seconds",
			Help:    "Duration of calls to the hosting service API.",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "result"})

	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_admin_publish_total",
			Help: "Publish attempts by outcome (success, invalid, unauthenticated, failed).",
		},
		[]string{"outcome"})

	publishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "portfolio_admin_publish_duration_seconds",
			Help:    "Wall time of the full publish pipeline.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		})

	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_admin_access_decisions_total",
			Help: "Access verification results by reason.",
		},
		[]string{"result"})

	stagedFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_admin_staged_files_total",
			Help: "Files processed by upload staging, by runtime mode.",
		},
		[]string{"mode"})
)

// ObserveHosting records one hosting API call.
func ObserveHosting(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	hostingRequests.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}

// Publish outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalid         = "invalid"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeFailed          = "failed"
)

// ObservePublish records a finished publish attempt.
func ObservePublish(outcome string, start time.Time) {
	publishTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSuccess || outcome == OutcomeFailed {
		publishDuration.Observe(time.Since(start).Seconds())
	}
}

// ObserveAccess counts an access decision. result is "owner", the granted
// permission level, or the denial reason.
func ObserveAccess(result string) {
	accessDecisions.WithLabelValues(result).Inc()
}

// ObserveStaged counts staged upload files.
func ObserveStaged(mode string, n int) {
	stagedFiles.WithLabelValues(mode).Add(float64(n))
}
