// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package probe sends greeting requests to a running server. It backs the
// probe subcommand used for container health checks and smoke tests.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/hellopool/internal/noop"
	"github.com/z5labs/hellopool/internal/slogfield"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
)

type options struct {
	timeout     time.Duration
	maxAttempts int
	waitMin     time.Duration
	waitMax     time.Duration
	tripAfter   uint32
	openFor     time.Duration
	logHandler  slog.Handler
}

// Option configures the client returned by [NewClient].
type Option func(*options)

// Timeout bounds every individual attempt.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// MaxAttempts is the total number of times a single request is tried,
// including the first one.
func MaxAttempts(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.maxAttempts = n
	}
}

// RetryWait bounds the backoff between attempts.
func RetryWait(min, max time.Duration) Option {
	return func(o *options) {
		o.waitMin = min
		o.waitMax = max
	}
}

// TripAfter is the number of consecutive failed requests, after retries,
// which opens the circuit.
func TripAfter(n uint32) Option {
	return func(o *options) {
		o.tripAfter = n
	}
}

// OpenFor is how long the circuit stays open before letting
// a single request through again.
func OpenFor(d time.Duration) Option {
	return func(o *options) {
		o.openFor = d
	}
}

// LogHandler sets the handler for attempt and circuit state logs.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// NewClient returns an [http.Client] which retries connection failures
// and 5xx responses, and stops sending requests altogether once the
// circuit has tripped.
func NewClient(opts ...Option) *http.Client {
	o := &options{
		timeout:     5 * time.Second,
		maxAttempts: 3,
		waitMin:     100 * time.Millisecond,
		waitMax:     2 * time.Second,
		tripAfter:   3,
		openFor:     30 * time.Second,
		logHandler:  noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	log := slog.New(o.logHandler)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true

	rc := &retryablehttp.Client{
		HTTPClient: &http.Client{
			Timeout:   o.timeout,
			Transport: transport,
		},
		RetryWaitMin: o.waitMin,
		RetryWaitMax: o.waitMax,
		RetryMax:     o.maxAttempts - 1,
		RequestLogHook: func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			log.DebugContext(req.Context(), "sending request", slogfield.String("url", req.URL.String()), slogfield.Int("attempt", attempt))
		},
		ResponseLogHook: func(_ retryablehttp.Logger, resp *http.Response) {
			log.DebugContext(resp.Request.Context(), "received response", slogfield.Int("status", resp.StatusCode))
		},
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "probe",
		MaxRequests: 1,
		Timeout:     o.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= o.tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(
				"circuit changed state",
				slogfield.String("circuit", name),
				slogfield.String("from", from.String()),
				slogfield.String("to", to.String()),
			)
		},
	})

	return &http.Client{
		Transport: &circuitRoundTripper{
			next: rc.StandardClient().Transport,
			cb:   cb,
		},
	}
}

// StatusCodeError occurs when the server answered with a 5xx status.
type StatusCodeError struct {
	Code int
}

// Error implements the [error] interface.
func (e StatusCodeError) Error() string {
	return fmt.Sprintf("server responded with status %d", e.Code)
}

// CircuitOpenError occurs when a request is rejected without being sent
// because too many previous requests failed.
type CircuitOpenError struct {
	Cause error
}

// Error implements the [error] interface.
func (e CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit is open: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e CircuitOpenError) Unwrap() error {
	return e.Cause
}

type circuitRoundTripper struct {
	next http.RoundTripper
	cb   *gobreaker.CircuitBreaker
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	v, err := rt.cb.Execute(func() (interface{}, error) {
		resp, err := rt.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, StatusCodeError{Code: resp.StatusCode}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, CircuitOpenError{Cause: err}
	}
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}

// RequestError records which of the probe requests failed.
type RequestError struct {
	N     int
	Cause error
}

// Error implements the [error] interface.
func (e RequestError) Error() string {
	return fmt.Sprintf("request %d failed: %s", e.N, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e RequestError) Unwrap() error {
	return e.Cause
}

const maxBodyBytes = 8192

// Run sends count sequential GET requests to url and writes one
// "<status> <body>" line to w per response. Every failed request
// is joined into the returned error.
func Run(ctx context.Context, client *http.Client, url string, count int, w io.Writer) error {
	var errs []error
	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			errs = append(errs, RequestError{N: i, Cause: ctx.Err()})
			break
		}

		line, err := get(ctx, client, url)
		if err != nil {
			errs = append(errs, RequestError{N: i, Cause: err})
			continue
		}
		fmt.Fprintln(w, line)
	}
	return errors.Join(errs...)
}

func get(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, b), nil
}
