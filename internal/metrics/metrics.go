package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts inbound HTTP requests by method, route and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opendata_http_requests_total",
		Help: "Inbound HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes inbound request duration in seconds
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opendata_http_request_duration_seconds",
		Help:    "Inbound HTTP request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// GatewayCalls counts dispatched gateway calls by outcome
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opendata_gateway_calls_total",
		Help: "Gateway calls by outcome",
	}, []string{"outcome"})

	// BackendLatency observes backend invocation latency in seconds
	BackendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "opendata_backend_latency_seconds",
		Help:    "Backend invocation latency",
		Buckets: prometheus.DefBuckets,
	})

	// LedgerTransfers counts committed ledger transfers
	LedgerTransfers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opendata_ledger_transfers_total",
		Help: "Committed ledger transfers",
	})

	// RateLimitRejections counts calls rejected by the rate limiter
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "opendata_ratelimit_rejections_total",
		Help: "Calls rejected by rate limiting",
	})
)
