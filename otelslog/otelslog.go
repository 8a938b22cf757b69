// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otelslog ties log records to the span active in their context.
package otelslog

import (
	"context"
	"log/slog"

	"github.com/z5labs/hellopool/internal/slogfield"

	"go.opentelemetry.io/otel/trace"
)

// Handler adds an "otel" group holding the trace id, span id and
// sampling decision to every record logged within a valid span.
// Records outside of a span pass through untouched.
type Handler struct {
	slog.Handler
}

// NewHandler wraps h.
func NewHandler(h slog.Handler) *Handler {
	return &Handler{Handler: h}
}

// New is shorthand for slog.New(NewHandler(h)).
func New(h slog.Handler) *slog.Logger {
	return slog.New(NewHandler(h))
}

// Handle implements the [slog.Handler] interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record = record.Clone()
		record.AddAttrs(spanGroup(sc))
	}
	return h.Handler.Handle(ctx, record)
}

// WithAttrs implements the [slog.Handler] interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.Handler.WithAttrs(attrs))
}

// WithGroup implements the [slog.Handler] interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.Handler.WithGroup(name))
}

func spanGroup(sc trace.SpanContext) slog.Attr {
	return slog.Group(
		"otel",
		slogfield.String("trace_id", sc.TraceID().String()),
		slogfield.String("span_id", sc.SpanID().String()),
		slog.Bool("sampled", sc.IsSampled()),
	)
}
