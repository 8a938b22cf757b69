// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package worker implements the accept, read, dispatch, write and reset
// cycle run by every slot of the pool.
package worker

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/z5labs/hellopool/deadline"
	"github.com/z5labs/hellopool/dispatch"
	"github.com/z5labs/hellopool/httpwire"
	"github.com/z5labs/hellopool/internal/noop"
	"github.com/z5labs/hellopool/internal/slogfield"
	"github.com/z5labs/hellopool/internal/try"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/z5labs/hellopool/worker"

const (
	// DefaultRequestTimeout bounds a full read, dispatch and write cycle.
	DefaultRequestTimeout = 60 * time.Second

	// DefaultMaxRequestBytes caps how much of a connection is ever read.
	DefaultMaxRequestBytes = 8192
)

// State is the stage of the cycle a worker is currently in.
type State int32

const (
	StateIdle State = iota
	StateAccepting
	StateReading
	StateProcessing
	StateWriting
)

var stateNames = [...]string{
	StateIdle:       "idle",
	StateAccepting:  "accepting",
	StateReading:    "reading",
	StateProcessing: "processing",
	StateWriting:    "writing",
}

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Decoder parses exactly one request from r.
type Decoder interface {
	Decode(r *bufio.Reader) (httpwire.Request, error)
}

// Encoder serializes a response onto w.
type Encoder interface {
	Encode(w io.Writer, resp httpwire.Response) error
}

// Dispatcher computes the response for a request. It must not fail.
type Dispatcher interface {
	Dispatch(httpwire.Request) httpwire.Response
}

// DispatcherFunc is a func variant of the [Dispatcher] interface.
type DispatcherFunc func(httpwire.Request) httpwire.Response

// Dispatch implements the [Dispatcher] interface.
func (f DispatcherFunc) Dispatch(req httpwire.Request) httpwire.Response {
	return f(req)
}

// Option configures a [Worker].
type Option func(*Worker)

// LogHandler sets the handler for the worker and its deadline supervisor.
func LogHandler(h slog.Handler) Option {
	return func(w *Worker) {
		w.logHandler = h
	}
}

// RequestTimeout sets the window a connection has, from the moment
// it is accepted, to be fully serviced.
func RequestTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d <= 0 {
			return
		}
		w.timeout = d
	}
}

// MaxRequestBytes caps the number of bytes read from a single connection.
func MaxRequestBytes(n int) Option {
	return func(w *Worker) {
		if n <= 0 {
			return
		}
		w.maxRequestBytes = n
	}
}

// WithDecoder replaces the default HTTP/1.x request decoder.
func WithDecoder(dec Decoder) Option {
	return func(w *Worker) {
		w.dec = dec
	}
}

// WithEncoder replaces the default HTTP/1.1 response encoder.
func WithEncoder(enc Encoder) Option {
	return func(w *Worker) {
		w.enc = enc
	}
}

// MeterProvider sets where the connection counters are recorded.
// It defaults to the global provider.
func MeterProvider(mp metric.MeterProvider) Option {
	return func(w *Worker) {
		w.meterProvider = mp
	}
}

// WithDispatcher replaces the default greeting dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(w *Worker) {
		w.disp = d
	}
}

type outcome string

const (
	outcomeServed      outcome = "served"
	outcomeMalformed   outcome = "malformed"
	outcomeDeadline    outcome = "deadline"
	outcomeWriteFailed outcome = "write_failed"
	outcomePanic       outcome = "panic"
)

// Worker owns at most one connection at a time. Between connections
// it is parked on Accept of the listener it shares with the rest of
// the pool.
type Worker struct {
	id              int
	ls              net.Listener
	logHandler      slog.Handler
	log             *slog.Logger
	meterProvider   metric.MeterProvider
	tracer          trace.Tracer
	inst            instruments
	timeout         time.Duration
	maxRequestBytes int
	dec             Decoder
	enc             Encoder
	disp            Dispatcher
	sv              *deadline.Supervisor

	state   atomic.Int32
	running atomic.Bool
	cycles  atomic.Uint64

	// only touched by the goroutine executing Run
	conn    net.Conn
	limited io.LimitedReader
	in      *bufio.Reader
	out     *bufio.Writer
}

// New returns a Worker for the given pool slot which will accept
// connections from ls.
func New(id int, ls net.Listener, opts ...Option) *Worker {
	w := &Worker{
		id:              id,
		ls:              ls,
		logHandler:      noop.LogHandler{},
		timeout:         DefaultRequestTimeout,
		maxRequestBytes: DefaultMaxRequestBytes,
		dec:             httpwire.Decoder{},
		enc:             httpwire.Encoder{},
		disp:            DispatcherFunc(dispatch.Dispatch),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.log = slog.New(w.logHandler).With(slogfield.WorkerID(id))
	w.tracer = otel.Tracer(instrumentationName)
	if w.meterProvider == nil {
		w.meterProvider = otel.GetMeterProvider()
	}
	w.inst = newInstruments(w.meterProvider.Meter(instrumentationName))
	w.sv = deadline.New(deadline.LogHandler(w.log.Handler()))
	w.in = bufio.NewReaderSize(&w.limited, w.maxRequestBytes)
	w.out = bufio.NewWriter(io.Discard)
	return w
}

// ID returns the pool slot of the worker.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current stage of the cycle.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Running reports whether Run is currently executing.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Cycles returns the number of connections the worker has finished
// with, regardless of how each of them ended.
func (w *Worker) Cycles() uint64 {
	return w.cycles.Load()
}

// Run executes the connection cycle until ctx is cancelled or the shared
// listener is closed. A connection in flight at that moment is allowed
// to finish, bounded by its deadline. Run must only be called once.
//
// Cancelling ctx interrupts a pending Accept by moving the listener
// deadline into the past. Listeners without SetDeadline are closed.
func (w *Worker) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, w.interruptAccept)
	defer stop()

	svCtx, cancelSv := context.WithCancel(context.WithoutCancel(ctx))
	svDone := make(chan struct{})
	go func() {
		defer close(svDone)
		w.sv.Run(svCtx)
	}()
	defer func() {
		cancelSv()
		<-svDone
	}()

	w.running.Store(true)
	defer w.running.Store(false)

	w.log.DebugContext(ctx, "worker started")
	defer w.log.DebugContext(ctx, "worker stopped")
	for {
		conn, ok := w.accept(ctx)
		if !ok {
			w.setState(StateIdle)
			return nil
		}
		w.serve(ctx, conn)
	}
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

type deadliner interface {
	SetDeadline(time.Time) error
}

func (w *Worker) interruptAccept() {
	dl, ok := w.ls.(deadliner)
	if ok && dl.SetDeadline(time.Now()) == nil {
		return
	}
	_ = w.ls.Close()
}

func (w *Worker) accept(ctx context.Context) (net.Conn, bool) {
	w.setState(StateAccepting)
	for {
		if ctx.Err() != nil {
			return nil, false
		}
		conn, err := w.ls.Accept()
		if err == nil {
			return conn, true
		}
		if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
			return nil, false
		}
		w.log.DebugContext(ctx, "failed to accept connection", slogfield.Error(err))
	}
}

func (w *Worker) serve(ctx context.Context, conn net.Conn) {
	spanCtx, span := w.tracer.Start(
		ctx,
		"worker.cycle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int("worker.id", w.id),
			attribute.String("net.peer.addr", conn.RemoteAddr().String()),
		),
	)
	defer span.End()

	w.conn = conn
	w.limited = io.LimitedReader{R: conn, N: int64(w.maxRequestBytes)}
	w.in.Reset(&w.limited)
	w.out.Reset(conn)
	w.sv.Arm(w.timeout, conn)
	w.inst.accepted.Add(spanCtx, 1)

	out := w.recoverCycle(spanCtx, span)
	fired := w.reset(spanCtx)
	if fired && out != outcomeServed {
		out = outcomeDeadline
	}

	span.SetAttributes(attribute.String("worker.outcome", string(out)))
	if out == outcomeServed {
		return
	}
	w.inst.abandoned.Add(spanCtx, 1, metric.WithAttributes(attribute.String("reason", string(out))))
	w.log.DebugContext(
		spanCtx,
		"abandoned connection",
		slogfield.String("reason", string(out)),
		slogfield.RemoteAddr(conn.RemoteAddr().String()),
	)
}

// recoverCycle keeps a panicking decoder, dispatcher or encoder from
// taking down the worker. The connection is still reset.
func (w *Worker) recoverCycle(ctx context.Context, span trace.Span) (out outcome) {
	var err error
	defer func() {
		if err == nil {
			return
		}
		span.RecordError(err)
		w.log.ErrorContext(ctx, "recovered from panic during cycle", slogfield.Error(err))
		out = outcomePanic
	}()
	defer try.Recover(&err)

	return w.cycle(ctx, span)
}

func (w *Worker) cycle(ctx context.Context, span trace.Span) outcome {
	w.setState(StateReading)
	req, err := w.dec.Decode(w.in)
	if err != nil {
		span.RecordError(err)
		w.log.DebugContext(ctx, "failed to read request", slogfield.Error(err))
		return outcomeMalformed
	}

	w.setState(StateProcessing)
	resp := w.disp.Dispatch(req)
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.Target),
		attribute.Int("http.status_code", resp.Status),
	)

	w.setState(StateWriting)
	err = w.enc.Encode(w.out, resp)
	if err == nil {
		err = w.out.Flush()
	}
	closeWrite(w.conn)
	if err != nil {
		span.RecordError(err)
		w.log.DebugContext(ctx, "failed to write response", slogfield.Error(err))
		return outcomeWriteFailed
	}

	w.inst.responses.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", resp.Status)))
	return outcomeServed
}

// reset leaves no trace of the previous connection behind and reports
// whether its deadline fired.
func (w *Worker) reset(ctx context.Context) bool {
	fired := w.sv.Disarm()

	err := w.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		w.log.DebugContext(ctx, "failed to close connection", slogfield.Error(err))
	}

	w.conn = nil
	w.limited = io.LimitedReader{}
	w.in.Reset(&w.limited)
	w.out.Reset(io.Discard)
	w.cycles.Add(1)
	w.setState(StateIdle)
	return fired
}

type closeWriter interface {
	CloseWrite() error
}

func closeWrite(conn net.Conn) {
	cw, ok := conn.(closeWriter)
	if !ok {
		return
	}
	_ = cw.CloseWrite()
}

type instruments struct {
	accepted  metric.Int64Counter
	abandoned metric.Int64Counter
	responses metric.Int64Counter
}

func newInstruments(m metric.Meter) instruments {
	return instruments{
		accepted:  counter(m, "hellopool.connections.accepted", "Connections accepted by a worker.", "{connection}"),
		abandoned: counter(m, "hellopool.connections.abandoned", "Connections dropped without a complete response.", "{connection}"),
		responses: counter(m, "hellopool.responses", "Responses fully written.", "{response}"),
	}
}

func counter(m metric.Meter, name, desc, unit string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		otel.Handle(err)
		return metricnoop.Int64Counter{}
	}
	return c
}
