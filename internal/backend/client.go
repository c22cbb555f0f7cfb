// Package backend invokes the chat backend service over HTTP.
//
// Calls report the backend status as data: a *Result is returned for any
// HTTP response, and an error only when no response arrived (*TransportError).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gaspardpetit/chatfront/internal/metrics"
)

// maxBodyBytes caps how much of a non-streaming response is read.
const maxBodyBytes = 8 << 20

// Timeouts selects the deadline for each call shape.
type Timeouts struct {
	Health   time.Duration
	Request  time.Duration
	History  time.Duration
	Generate time.Duration
	Stream   time.Duration
}

// DefaultTimeouts returns the built-in timeout tiers.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Health:   30 * time.Second,
		Request:  10 * time.Second,
		History:  15 * time.Second,
		Generate: 60 * time.Second,
		Stream:   300 * time.Second,
	}
}

// Client is a thin HTTP invoker for the backend service.
type Client struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
}

// New returns a Client for the backend at baseURL. A nil hc uses a client
// without a global timeout; deadlines come from the per-call context.
func New(baseURL string, timeouts Timeouts, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, timeouts: timeouts}
}

// Timeouts returns the configured timeout tiers.
func (c *Client) Timeouts() Timeouts { return c.timeouts }

// Result is a buffered backend response.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 200 response.
func (r *Result) OK() bool { return r.Status == http.StatusOK }

// Decode unmarshals the body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}

// Detail extracts a human-readable error message from the body.
func (r *Result) Detail(fallback string) string { return ErrorDetail(r.Body, fallback) }

// TransportError reports a backend call that produced no HTTP response:
// connection refused or reset, DNS failure, timeout, cancellation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "backend " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *TransportError) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

// Request describes a short authenticated call.
type Request struct {
	Method string
	Path   string
	// Token is the bearer token; empty omits the Authorization header.
	Token string
	// Body is JSON encoded when non-nil.
	Body any
	// Timeout overrides the default short-call timeout.
	Timeout time.Duration
	// Op labels metrics and errors; defaults to the path.
	Op string
}

// Health checks GET /health. It never returns an error: any transport
// failure or non-200 status reports false.
func (c *Client) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Health)
	defer cancel()
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordBackendCall("health", metrics.OutcomeTransport, time.Since(start))
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	ok := resp.StatusCode == http.StatusOK
	metrics.RecordBackendCall("health", outcomeFor(resp.StatusCode), time.Since(start))
	return ok
}

// Do performs a short call and buffers the response.
func (c *Client) Do(ctx context.Context, r Request) (*Result, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = c.timeouts.Request
	}
	op := r.Op
	if op == "" {
		op = r.Path
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.send(ctx, r.Method, r.Path, r.Token, r.Body, "")
	if err != nil {
		metrics.RecordBackendCall(op, metrics.OutcomeTransport, time.Since(start))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordBackendCall(op, metrics.OutcomeTransport, time.Since(start))
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	metrics.RecordBackendCall(op, outcomeFor(resp.StatusCode), time.Since(start))
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Generate performs a bounded, non-streaming generation. The outgoing body
// always carries stream=false.
func (c *Client) Generate(ctx context.Context, token string, g GenerateRequest) (*Result, error) {
	g.Stream = false
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    "/generate",
		Token:   token,
		Body:    g,
		Timeout: c.timeouts.Generate,
		Op:      "generate",
	})
}

// Stream is an open streaming generation response. The body is unread;
// callers must Close it.
type Stream struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
	cancel context.CancelFunc
}

// OK reports a 200 response.
func (s *Stream) OK() bool { return s.Status == http.StatusOK }

// Close releases the response body and the call deadline.
func (s *Stream) Close() error {
	err := s.Body.Close()
	s.cancel()
	return err
}

// OpenStream starts a streaming generation and returns the live response.
// The outgoing body always carries stream=true. The stream lives until ctx
// is done, the Stream timeout elapses, or Close is called.
func (c *Client) OpenStream(ctx context.Context, token string, g GenerateRequest) (*Stream, error) {
	g.Stream = true
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Stream)
	start := time.Now()
	resp, err := c.send(ctx, http.MethodPost, "/generate", token, g, "text/event-stream")
	if err != nil {
		cancel()
		metrics.RecordBackendCall("stream", metrics.OutcomeTransport, time.Since(start))
		return nil, &TransportError{Op: "stream", Err: err}
	}
	metrics.RecordBackendCall("stream", outcomeFor(resp.StatusCode), time.Since(start))
	return &Stream{Status: resp.StatusCode, Header: resp.Header, Body: resp.Body, cancel: cancel}, nil
}

func (c *Client) send(ctx context.Context, method, path, token string, body any, accept string) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

func outcomeFor(status int) string {
	if status >= 200 && status < 300 {
		return metrics.OutcomeOK
	}
	return metrics.OutcomeAppError
}
