// Package metrics exposes Prometheus collectors for the gazette watcher.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch cycle triggers.
const (
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
)

// Outcome labels shared by the cycle and notification counters.
const (
	OutcomeSuccess     = "success"
	OutcomeRemoteError = "remote_error"
	OutcomeStoreError  = "store_error"
	OutcomeError       = "error"
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
)

var (
	fetchCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazette_fetch_cycles_total",
			Help: "Total number of fetch cycles, labeled by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	fetchCycleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gazette_fetch_cycle_duration_seconds",
			Help:    "Histogram of fetch cycle latencies, labeled by trigger.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"trigger"},
	)

	postsStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gazette_posts_stored_total",
			Help: "Total number of new posts persisted.",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gazette_notifications_total",
			Help: "Total number of notification attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	notifyRateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gazette_notify_rate_limit_delay_seconds",
			Help:    "Histogram of time spent waiting on the outbound message rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchCycle records one fetch cycle.
func ObserveFetchCycle(trigger, outcome string, duration time.Duration) {
	fetchCyclesTotal.WithLabelValues(trigger, outcome).Inc()
	fetchCycleDurationSeconds.WithLabelValues(trigger).Observe(duration.Seconds())
}

// ObservePostsStored adds n newly persisted posts.
func ObservePostsStored(n int) {
	if n > 0 {
		postsStoredTotal.Add(float64(n))
	}
}

// ObserveNotification increments the notification counter for the outcome.
func ObserveNotification(outcome string) {
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	notifyRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
