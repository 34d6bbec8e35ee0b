// Command shieldhttp-demo drives a resilient client against a flaky
// local upstream, logging every lifecycle event, to show the
// concurrency limiter and circuit breaker reacting to live traffic.
//
// Adapted from the teacher's examples/production_ready (scenario-driven
// load generation) and examples/http_server (flaky upstream handler)
// programs.
package main

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-resilient/shieldhttp"
)

// scenario describes one phase of simulated upstream behavior.
type scenario struct {
	name        string
	duration    time.Duration
	requestsPS  int
	failureRate float64
	latency     time.Duration
}

var scenarios = []scenario{
	{name: "normal operation", duration: 2 * time.Second, requestsPS: 40, failureRate: 0.02, latency: 10 * time.Millisecond},
	{name: "service degradation", duration: 2 * time.Second, requestsPS: 40, failureRate: 0.60, latency: 10 * time.Millisecond},
	{name: "recovery", duration: 2 * time.Second, requestsPS: 40, failureRate: 0.02, latency: 10 * time.Millisecond},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	var cur atomic.Value
	cur.Store(scenarios[0])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := cur.Load().(scenario)
		time.Sleep(s.latency)
		if rand.Float64() < s.failureRate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := shieldhttp.New(shieldhttp.Config{
		MaxInFlight:      10,
		MaxQueue:         20,
		EnqueueTimeoutMS: 100,
		RequestTimeoutMS: 500,
		Breaker: shieldhttp.BreakerConfig{
			WindowSize:         20,
			MinRequests:        10,
			FailureThreshold:   0.5,
			CooldownMS:         500,
			HalfOpenProbeCount: 3,
		},
	})

	client.Subscribe(shieldhttp.BreakerState, func(e shieldhttp.Event) {
		log.Info().Str("key", e.Key).Str("from", e.From.String()).Str("to", e.To.String()).Msg("breaker:state")
	})
	client.Subscribe(shieldhttp.RequestRejected, func(e shieldhttp.Event) {
		log.Warn().Str("key", e.Key).Str("request", e.Request).Str("request_id", e.RequestID).Err(e.Err).Msg("request:rejected")
	})
	client.Subscribe(shieldhttp.RequestFailure, func(e shieldhttp.Event) {
		log.Debug().Str("key", e.Key).Str("request", e.Request).Str("error_name", e.ErrorName).Int64("duration_ms", e.DurationMS).Msg("request:failure")
	})
	client.Subscribe(shieldhttp.QueueFull, func(e shieldhttp.Event) {
		log.Debug().Str("key", e.Key).Str("request", e.Request).Int("queue_depth", e.QueueDepth).Msg("queue:full")
	})

	ctx := context.Background()
	for _, s := range scenarios {
		cur.Store(s)
		runScenario(ctx, client, srv.URL, s)
	}

	snap := client.Snapshot()
	log.Info().Int("in_flight", snap.InFlight).Int("queue_depth", snap.QueueDepth).Msg("final snapshot")
	for _, b := range snap.Breakers {
		log.Info().Str("key", b.Key).Str("state", b.State.String()).Float64("failure_rate", b.FailureRate).Msg("final breaker bucket")
	}
}

func runScenario(ctx context.Context, client *shieldhttp.Client, url string, s scenario) {
	log.Info().Str("scenario", s.name).Int("requests_per_sec", s.requestsPS).Float64("failure_rate", s.failureRate).Msg("starting scenario")

	ticker := time.NewTicker(time.Second / time.Duration(s.requestsPS))
	defer ticker.Stop()

	var successes, failures, rejected int64
	deadline := time.Now().Add(s.duration)
	for time.Now().Before(deadline) {
		<-ticker.C
		_, err := client.Request(ctx, shieldhttp.Request{Method: shieldhttp.MethodGet, URL: url})
		switch {
		case err == nil:
			successes++
		case isRejection(err):
			rejected++
		default:
			failures++
		}
	}

	log.Info().
		Str("scenario", s.name).
		Int64("successes", successes).
		Int64("failures", failures).
		Int64("rejected", rejected).
		Msg("scenario complete")
}

func isRejection(err error) bool {
	switch err.(type) {
	case *shieldhttp.CircuitOpenError, *shieldhttp.QueueFullError, *shieldhttp.QueueTimeoutError:
		return true
	default:
		return false
	}
}
