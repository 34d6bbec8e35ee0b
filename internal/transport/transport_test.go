package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	a := New(nil)
	resp, err := a.Do(context.Background(), Request{Method: MethodGet, URL: srv.URL}, time.Second)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("Body = %q, want %q", resp.Body, "ok")
	}
	if got := resp.Headers["x-multi"]; got != "a, b" {
		t.Errorf("Headers[x-multi] = %q, want %q", got, "a, b")
	}
}

func TestDoRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(nil)
	_, err := a.Do(context.Background(), Request{Method: MethodGet, URL: srv.URL}, 50*time.Millisecond)
	var timeoutErr *RequestTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Do() error = %v (%T), want *RequestTimeoutError", err, err)
	}
}

func TestDoTransportErrorSurfacedUnmodified(t *testing.T) {
	a := New(nil)
	_, err := a.Do(context.Background(), Request{Method: MethodGet, URL: "http://127.0.0.1:1"}, time.Second)
	if err == nil {
		t.Fatal("expected a connection error")
	}
	var timeoutErr *RequestTimeoutError
	if errors.As(err, &timeoutErr) {
		t.Fatal("connection refused should not be classified as RequestTimeoutError")
	}
}
