package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evchat_agent_http_request_duration_seconds",
		Help:    "Latency of local agent API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	requestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evchat_agent_http_requests_in_flight",
		Help: "Local agent API requests being served",
	})
)
