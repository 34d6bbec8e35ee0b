// Package metrics exposes a Client's limiter and breaker state as
// Prometheus metrics.
//
// Adapted from the teacher's examples/prometheus CircuitBreakerCollector:
// that collector wrapped one single-instance breaker labeled by its
// Name(); this one snapshots a whole Client — one set of per-key
// breaker gauges labeled by key, plus process-wide limiter gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-resilient/shieldhttp"
)

// Collector implements prometheus.Collector over a shieldhttp.Client's
// Snapshot.
type Collector struct {
	client *shieldhttp.Client

	limiterInFlight    *prometheus.Desc
	limiterQueueDepth  *prometheus.Desc
	limiterMaxInFlight *prometheus.Desc
	limiterMaxQueue    *prometheus.Desc

	breakerState            *prometheus.Desc
	breakerWindowCount      *prometheus.Desc
	breakerWindowFailures   *prometheus.Desc
	breakerFailureRate      *prometheus.Desc
	breakerHalfOpenInFlight *prometheus.Desc
}

// NewCollector constructs a Collector for client.
func NewCollector(client *shieldhttp.Client) *Collector {
	return &Collector{
		client: client,

		limiterInFlight: prometheus.NewDesc(
			"shieldhttp_limiter_in_flight",
			"Number of currently admitted in-flight requests.",
			nil, nil,
		),
		limiterQueueDepth: prometheus.NewDesc(
			"shieldhttp_limiter_queue_depth",
			"Number of callers currently waiting for a permit.",
			nil, nil,
		),
		limiterMaxInFlight: prometheus.NewDesc(
			"shieldhttp_limiter_max_in_flight",
			"Configured maximum number of concurrently admitted requests.",
			nil, nil,
		),
		limiterMaxQueue: prometheus.NewDesc(
			"shieldhttp_limiter_max_queue",
			"Configured maximum wait-queue depth.",
			nil, nil,
		),

		breakerState: prometheus.NewDesc(
			"shieldhttp_breaker_state",
			"Current circuit breaker state per key (0=closed, 1=open, 2=half-open).",
			[]string{"key"}, nil,
		),
		breakerWindowCount: prometheus.NewDesc(
			"shieldhttp_breaker_window_count",
			"Number of outcomes currently held in the rolling window.",
			[]string{"key"}, nil,
		),
		breakerWindowFailures: prometheus.NewDesc(
			"shieldhttp_breaker_window_failures",
			"Number of failures currently held in the rolling window.",
			[]string{"key"}, nil,
		),
		breakerFailureRate: prometheus.NewDesc(
			"shieldhttp_breaker_failure_rate",
			"Current failure rate of the rolling window.",
			[]string{"key"}, nil,
		),
		breakerHalfOpenInFlight: prometheus.NewDesc(
			"shieldhttp_breaker_half_open_in_flight",
			"Number of HALF_OPEN probes currently admitted.",
			[]string{"key"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limiterInFlight
	ch <- c.limiterQueueDepth
	ch <- c.limiterMaxInFlight
	ch <- c.limiterMaxQueue
	ch <- c.breakerState
	ch <- c.breakerWindowCount
	ch <- c.breakerWindowFailures
	ch <- c.breakerFailureRate
	ch <- c.breakerHalfOpenInFlight
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.client.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.limiterInFlight, prometheus.GaugeValue, float64(snap.InFlight))
	ch <- prometheus.MustNewConstMetric(c.limiterQueueDepth, prometheus.GaugeValue, float64(snap.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.limiterMaxInFlight, prometheus.GaugeValue, float64(snap.MaxInFlight))
	ch <- prometheus.MustNewConstMetric(c.limiterMaxQueue, prometheus.GaugeValue, float64(snap.MaxQueue))

	for _, b := range snap.Breakers {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, float64(b.State), b.Key)
		ch <- prometheus.MustNewConstMetric(c.breakerWindowCount, prometheus.GaugeValue, float64(b.WindowCount), b.Key)
		ch <- prometheus.MustNewConstMetric(c.breakerWindowFailures, prometheus.GaugeValue, float64(b.WindowFailures), b.Key)
		ch <- prometheus.MustNewConstMetric(c.breakerFailureRate, prometheus.GaugeValue, b.FailureRate, b.Key)
		ch <- prometheus.MustNewConstMetric(c.breakerHalfOpenInFlight, prometheus.GaugeValue, float64(b.HalfOpenInFlight), b.Key)
	}
}
