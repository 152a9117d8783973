package main

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_relay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "review_relay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_relay_decisions_total",
			Help: "Review decisions by kind and outcome",
		},
		[]string{"decision", "outcome"},
	)

	githubRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_relay_github_requests_total",
			Help: "Contents API calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "review_relay_rate_limited_total",
			Help: "Approvals refused by the rate limiter",
		},
	)
)

// recordHTTPRequest records one served request.
func recordHTTPRequest(method, route string, statusCode int, durationSeconds float64) {
	httpRequestsTotal.WithLabelValues(method, route, statusClass(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

func recordDecision(decision, outcome string) {
	decisionsTotal.WithLabelValues(decision, outcome).Inc()
}

func recordGitHubRequest(operation, outcome string) {
	githubRequestsTotal.WithLabelValues(operation, outcome).Inc()
}

// metricsHandler serves the Prometheus exposition format.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
