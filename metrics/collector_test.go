package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/go-resilient/shieldhttp"
)

func TestCollectorReportsLimiterGauges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := shieldhttp.New(shieldhttp.Config{
		MaxInFlight: 4, MaxQueue: 4, EnqueueTimeoutMS: 200, RequestTimeoutMS: 1000,
		Breaker: shieldhttp.BreakerConfig{WindowSize: 10, MinRequests: 4, FailureThreshold: 0.5, CooldownMS: 50, HalfOpenProbeCount: 2},
	})
	if _, err := client.Request(context.Background(), shieldhttp.Request{Method: shieldhttp.MethodGet, URL: srv.URL}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	c := NewCollector(client)
	expected := `
# HELP shieldhttp_limiter_max_in_flight Configured maximum number of concurrently admitted requests.
# TYPE shieldhttp_limiter_max_in_flight gauge
shieldhttp_limiter_max_in_flight 4
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "shieldhttp_limiter_max_in_flight"); err != nil {
		t.Errorf("unexpected metric collection: %v", err)
	}
}

func TestCollectorReportsBreakerGaugePerKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := shieldhttp.New(shieldhttp.Config{
		MaxInFlight: 4, MaxQueue: 4, EnqueueTimeoutMS: 200, RequestTimeoutMS: 1000,
		Breaker: shieldhttp.BreakerConfig{WindowSize: 10, MinRequests: 4, FailureThreshold: 0.5, CooldownMS: 50, HalfOpenProbeCount: 2},
	})
	if _, err := client.Request(context.Background(), shieldhttp.Request{Method: shieldhttp.MethodGet, URL: srv.URL}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	c := NewCollector(client)
	count := testutil.CollectAndCount(c, "shieldhttp_breaker_state")
	if count != 1 {
		t.Errorf("shieldhttp_breaker_state series count = %d, want 1", count)
	}
}
