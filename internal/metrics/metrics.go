package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// NLQParseTotal counts NLQ parses by outcome (whether the phrase
	// produced any filter predicates).
	NLQParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_nlq_parse_total",
			Help: "Total number of NLQ phrases parsed",
		},
		[]string{"outcome"},
	)
)
