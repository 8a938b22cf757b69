// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server assembles the worker pool, its listener and the
// optional health endpoints into a single runnable app.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/app"
	"github.com/z5labs/hellopool/health"
	"github.com/z5labs/hellopool/health/httphealth"
	"github.com/z5labs/hellopool/httpwire"
	"github.com/z5labs/hellopool/internal/slogfield"
	"github.com/z5labs/hellopool/lifecycle"
	"github.com/z5labs/hellopool/otelslog"
	"github.com/z5labs/hellopool/pidfile"
	"github.com/z5labs/hellopool/pool"
	"github.com/z5labs/hellopool/worker"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// ListenError occurs when a listening socket could not be bound.
type ListenError struct {
	Addr  string
	Cause error
}

// Error implements the [error] interface.
func (e ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %s", e.Addr, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ListenError) Unwrap() error {
	return e.Cause
}

// Build implements the [hellopool.AppBuilderFunc] type. The pid file,
// if one is configured, is removed once the returned app has finished.
func Build(ctx context.Context, cfg Config) (hellopool.App, error) {
	rt, err := newRuntime(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	if cfg.Server.PidFile == "" {
		return rt, nil
	}

	hook := pidfile.RemoveHook(cfg.Server.PidFile)
	lc, ok := lifecycle.FromContext(ctx)
	if !ok {
		return app.PostRun(rt, hook), nil
	}
	lc.OnPostRun(hook)
	return rt, nil
}

// Runtime serves the greeting protocol from a fixed pool of workers.
type Runtime struct {
	log  *slog.Logger
	ls   net.Listener
	pool *pool.Pool

	liveness  *health.Binary
	healthLs  net.Listener
	healthSrv *http.Server
}

func newRuntime(ctx context.Context, cfg Config, out io.Writer) (*Runtime, error) {
	logHandler, err := newLogHandler(cfg, out)
	if err != nil {
		return nil, err
	}
	log := slog.New(logHandler)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.FormatUint(uint64(cfg.Server.Port), 10))
	ls, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ListenError{Addr: addr, Cause: err}
	}

	pid := os.Getpid()
	if cfg.Server.PidFile != "" {
		err = pidfile.Write(cfg.Server.PidFile, pid)
		if err != nil {
			ls.Close()
			return nil, err
		}
	}

	rt := &Runtime{
		log: log,
		ls:  ls,
		pool: pool.New(
			ls,
			pool.Size(cfg.Server.PoolSize),
			pool.LogHandler(logHandler),
			pool.WorkerOptions(
				worker.RequestTimeout(cfg.Server.RequestTimeout),
				worker.MaxRequestBytes(cfg.Server.MaxRequestBytes),
				worker.WithEncoder(httpwire.Encoder{ServerName: cfg.Server.ServerName}),
			),
		),
		liveness: &health.Binary{},
	}

	if cfg.Health.Enabled {
		err = rt.listenHealth(cfg)
		if err != nil {
			ls.Close()
			if cfg.Server.PidFile != "" {
				_ = pidfile.Remove(cfg.Server.PidFile)
			}
			return nil, err
		}
	}

	port := ls.Addr().(*net.TCPAddr).Port
	log.InfoContext(
		ctx,
		fmt.Sprintf("Master %d is running on port %d", pid, port),
		slogfield.Int("pid", pid),
		slogfield.Int("port", port),
		slogfield.Int("pool_size", rt.pool.Size()),
	)
	return rt, nil
}

func newLogHandler(cfg Config, out io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.Logging.Level,
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json":
		return otelslog.NewHandler(slog.NewJSONHandler(out, opts)), nil
	case "text":
		return otelslog.NewHandler(slog.NewTextHandler(out, opts)), nil
	default:
		return nil, UnsupportedValueError{Key: "logging.format", Value: cfg.Logging.Format}
	}
}

func (rt *Runtime) listenHealth(cfg Config) error {
	addr := net.JoinHostPort(cfg.Server.Host, strconv.FormatUint(uint64(cfg.Health.Port), 10))
	ls, err := net.Listen("tcp", addr)
	if err != nil {
		return ListenError{Addr: addr, Cause: err}
	}

	mux := http.NewServeMux()
	mux.Handle("/health/liveness", httphealth.NewHandler(rt.liveness))
	mux.Handle("/health/readiness", httphealth.NewHandler(health.And(
		rt.liveness,
		health.MetricFunc(rt.pool.Healthy),
	)))

	rt.healthLs = ls
	rt.healthSrv = &http.Server{
		Handler:           otelhttp.NewHandler(mux, "health"),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(rt.log.Handler(), slog.LevelError),
	}
	return nil
}

// Addr returns the address the worker pool accepts connections on.
func (rt *Runtime) Addr() net.Addr {
	return rt.ls.Addr()
}

// HealthAddr returns the address of the health endpoints or nil
// if they are disabled.
func (rt *Runtime) HealthAddr() net.Addr {
	if rt.healthLs == nil {
		return nil
	}
	return rt.healthLs.Addr()
}

// Run implements the [hellopool.App] interface.
func (rt *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		defer rt.liveness.MarkUnhealthy()
		return rt.pool.Run(gctx)
	})
	if rt.healthSrv != nil {
		g.Go(func() error {
			err := rt.healthSrv.Serve(rt.healthLs)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return rt.healthSrv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	rt.log.InfoContext(ctx, "shut down")
	return err
}
