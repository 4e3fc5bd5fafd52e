package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "whisprd",
		Subsystem: "server",
		Name:      "starts_total",
		Help:      "Server start attempts by result.",
	}, []string{"result"})

	healthFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "whisprd",
		Subsystem: "server",
		Name:      "health_failures_total",
		Help:      "Failed health checks against the running server.",
	})

	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "whisprd",
		Subsystem: "server",
		Name:      "inference_duration_seconds",
		Help:      "Wall-clock duration of completion requests.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
