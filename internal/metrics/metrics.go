package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Conversation metrics
	TurnsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_turns_appended_total",
			Help: "Total turns appended to the session log",
		},
		[]string{"role"},
	)

	GenerationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_generation_failures_total",
			Help: "Generation calls replaced by a placeholder reply",
		},
		[]string{"kind"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_generation_duration_seconds",
			Help:    "Generation call latency per agent",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	FanOutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "council_fanout_duration_seconds",
			Help:    "Duration of one user input fan-out",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_store_latency_seconds",
			Help:    "Turn store operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"backend", "op"},
	)
)

// ObserveStore records the latency of a store operation started at start.
func ObserveStore(backend, op string, start time.Time) {
	StoreLatency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}
