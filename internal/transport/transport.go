// Package transport adapts the standard library's net/http client to
// the single operation the resilience core needs: perform one HTTP
// exchange, honoring an external deadline.
//
// This package is the "external collaborator" boundary spec.md §1
// calls out — connection pooling, TLS, and DNS resolution are left
// entirely to net/http's default transport.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Method is an enumerated HTTP method, matching spec.md §3's "Method
// (enumerated)" request field.
type Method string

const (
	MethodGet     Method = http.MethodGet
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
)

// Request is the wire-agnostic request descriptor from spec.md §3.
type Request struct {
	Method  Method
	URL     string
	Headers map[string]string // case-insensitive keys
	Body    []byte
}

// Response is the wire-agnostic response descriptor from spec.md §3.
type Response struct {
	Status  int
	Headers map[string]string // lower-cased keys
	Body    []byte
}

// RequestTimeoutError is returned when the deadline passed to Do
// elapses before the exchange completes.
type RequestTimeoutError struct {
	DeadlineMS int64
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("transport: request timed out after %dms", e.DeadlineMS)
}

// Adapter performs one-shot HTTP exchanges over a shared *http.Client.
type Adapter struct {
	client *http.Client
}

// New constructs an Adapter. A nil client uses http.DefaultClient.
func New(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client}
}

// Do performs one HTTP exchange, arming a cancellation source with
// deadline and reading the full response body into memory. If the
// cancellation source fires before the exchange completes, Do returns
// a *RequestTimeoutError; other transport errors are surfaced
// unmodified. The cancellation source is always cleaned up.
func (a *Adapter) Do(ctx context.Context, req Request, deadline time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return Response{}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, &RequestTimeoutError{DeadlineMS: deadline.Milliseconds()}
		}
		return Response{}, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, &RequestTimeoutError{DeadlineMS: deadline.Milliseconds()}
		}
		return Response{}, err
	}

	return Response{
		Status:  httpResp.StatusCode,
		Headers: normalizeHeaders(httpResp.Header),
		Body:    respBody,
	}, nil
}

// normalizeHeaders lower-cases header keys and joins multi-value
// headers with ", ", per spec.md §4.4.
func normalizeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[strings.ToLower(k)] = strings.Join(values, ", ")
	}
	return out
}
