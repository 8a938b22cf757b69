// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pool runs a fixed number of workers against one shared listener.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime"
	"sync/atomic"

	"github.com/z5labs/hellopool/internal/fixedpool"
	"github.com/z5labs/hellopool/internal/noop"
	"github.com/z5labs/hellopool/internal/slogfield"
	"github.com/z5labs/hellopool/worker"
)

// Option configures a [Pool].
type Option func(*Pool)

// Size sets the number of workers. Any value less than one
// falls back to the number of logical CPUs.
func Size(n int) Option {
	return func(p *Pool) {
		p.size = n
	}
}

// LogHandler sets the handler used by the pool and all of its workers.
func LogHandler(h slog.Handler) Option {
	return func(p *Pool) {
		p.logHandler = h
	}
}

// WorkerOptions are applied to every worker in the pool.
func WorkerOptions(opts ...worker.Option) Option {
	return func(p *Pool) {
		p.workerOpts = append(p.workerOpts, opts...)
	}
}

// Pool is a fixed set of workers created once and never resized.
type Pool struct {
	ls         net.Listener
	size       int
	logHandler slog.Handler
	log        *slog.Logger
	workerOpts []worker.Option
	workers    []*worker.Worker
}

// New returns a Pool whose workers all accept from ls.
func New(ls net.Listener, opts ...Option) *Pool {
	p := &Pool{
		ls:         ls,
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.size < 1 {
		p.size = runtime.NumCPU()
	}
	p.log = slog.New(p.logHandler)

	wopts := append([]worker.Option{worker.LogHandler(p.logHandler)}, p.workerOpts...)
	p.workers = make([]*worker.Worker, p.size)
	for i := range p.workers {
		p.workers[i] = worker.New(i, ls, wopts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Workers returns the workers of the pool ordered by their id.
func (p *Pool) Workers() []*worker.Worker {
	return p.workers
}

// Healthy reports whether every worker is still running its cycle.
func (p *Pool) Healthy(ctx context.Context) bool {
	for _, w := range p.workers {
		if !w.Running() {
			return false
		}
	}
	return true
}

// Run starts every worker and blocks until all of them have returned.
// Cancelling ctx closes the shared listener which stops the workers
// from accepting any more connections.
func (p *Pool) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var remaining atomic.Int64
	remaining.Store(int64(len(p.workers)))

	tasks := make([]fixedpool.Task, 0, len(p.workers)+1)
	for _, w := range p.workers {
		run := w.Run
		tasks = append(tasks, func(ctx context.Context) error {
			// the listener may have been closed by someone else
			defer func() {
				if remaining.Add(-1) == 0 {
					cancel()
				}
			}()
			return run(ctx)
		})
	}
	tasks = append(tasks, p.closeListener)

	p.log.InfoContext(ctx, "starting worker pool", slogfield.Int("size", p.size))
	err := fixedpool.Wait(ctx, tasks...)
	p.log.InfoContext(ctx, "worker pool stopped")
	return err
}

func (p *Pool) closeListener(ctx context.Context) error {
	<-ctx.Done()
	err := p.ls.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
