// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package deadline provides a per worker timer which forcibly closes a
// connection that has outlived its time budget.
package deadline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/z5labs/hellopool/internal/noop"
	"github.com/z5labs/hellopool/internal/slogfield"
)

// Option configures a [Supervisor].
type Option func(*Supervisor)

// LogHandler sets the handler the [Supervisor] logs forced closes with.
func LogHandler(h slog.Handler) Option {
	return func(s *Supervisor) {
		s.log = slog.New(h)
	}
}

type armRequest struct {
	expiry time.Time
	c      io.Closer
}

// Supervisor watches a single armed [io.Closer] at a time. Once the armed
// expiry has passed the closer is closed and the Supervisor parks until it
// is armed again.
//
// Arm and Disarm are synchronous hand offs to the goroutine executing Run
// so a caller observes a strict arm, service, disarm ordering.
type Supervisor struct {
	log *slog.Logger

	armCh    chan armRequest
	disarmCh chan struct{}
	firedCh  chan bool
	done     chan struct{}
}

// New returns a parked Supervisor. It does nothing until Run is called.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:      slog.New(noop.LogHandler{}),
		armCh:    make(chan armRequest),
		disarmCh: make(chan struct{}),
		firedCh:  make(chan bool),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm sets the expiry to now plus d for the given closer, replacing
// whatever was previously armed.
func (s *Supervisor) Arm(d time.Duration, c io.Closer) {
	req := armRequest{
		expiry: time.Now().Add(d),
		c:      c,
	}
	select {
	case <-s.done:
	case s.armCh <- req:
	}
}

// Disarm parks the Supervisor and reports whether the armed closer
// was forcibly closed since the last call to Arm.
func (s *Supervisor) Disarm() bool {
	select {
	case <-s.done:
		return false
	case s.disarmCh <- struct{}{}:
	}
	return <-s.firedCh
}

// Run executes the timer loop until ctx is cancelled. It must only be
// called once.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	stop(timer)

	var (
		armed  io.Closer
		expiry time.Time
		fired  bool
	)
	for {
		select {
		case <-ctx.Done():
			stop(timer)
			return nil
		case req := <-s.armCh:
			stop(timer)
			armed, expiry, fired = req.c, req.expiry, false
			timer.Reset(time.Until(expiry))
		case <-s.disarmCh:
			stop(timer)
			armed = nil
			s.firedCh <- fired
			fired = false
		case now := <-timer.C:
			if armed == nil {
				continue
			}
			// the deadline may have moved so check it has really passed
			if now.Before(expiry) {
				timer.Reset(expiry.Sub(now))
				continue
			}

			err := armed.Close()
			if err != nil {
				s.log.DebugContext(ctx, "failed to close expired connection", slogfield.Error(err))
			}
			s.log.InfoContext(
				ctx,
				"deadline exceeded, closed connection",
				slogfield.Duration("overdue", now.Sub(expiry)),
			)

			armed = nil
			fired = true
		}
	}
}

func stop(t *time.Timer) {
	if t.Stop() {
		return
	}
	select {
	case <-t.C:
	default:
	}
}
