package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Backend API call latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "status"},
	)

	// Auth metrics
	AuthRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_refresh_total",
			Help: "Token refresh calls issued, by result",
		},
		[]string{"result"},
	)

	AuthReplayTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_auth_replay_total",
			Help: "Requests replayed after a 401, by how the new token was obtained",
		},
		[]string{"source"},
	)

	AuthTeardownTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_auth_teardown_total",
			Help: "Sessions torn down after an irrecoverable auth failure",
		},
	)

	// Session / cart metrics
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_session_transitions_total",
			Help: "Session state transitions",
		},
		[]string{"to"},
	)

	CartMergeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_merge_total",
			Help: "Guest cart merges into the server cart, by result",
		},
		[]string{"result"},
	)
)
