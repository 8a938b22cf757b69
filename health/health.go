// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package health provides composable liveness metrics.
package health

import (
	"context"
	"sync/atomic"
)

// Metric represents anything that can report its health status.
type Metric interface {
	Healthy(context.Context) bool
}

// MetricFunc is a func variant of the [Metric] interface.
type MetricFunc func(context.Context) bool

// Healthy implements the [Metric] interface.
func (f MetricFunc) Healthy(ctx context.Context) bool {
	return f(ctx)
}

// Binary is a [Metric] that is either healthy or not.
// The zero value is healthy.
type Binary struct {
	unhealthy atomic.Bool
}

// Toggle flips the current state.
func (m *Binary) Toggle() {
	for {
		old := m.unhealthy.Load()
		if m.unhealthy.CompareAndSwap(old, !old) {
			return
		}
	}
}

// MarkUnhealthy forces the unhealthy state.
func (m *Binary) MarkUnhealthy() {
	m.unhealthy.Store(true)
}

// Healthy implements the [Metric] interface.
func (m *Binary) Healthy(ctx context.Context) bool {
	return !m.unhealthy.Load()
}

// AndMetric is healthy only when all of its metrics are.
type AndMetric struct {
	metrics []Metric
}

// And returns a [Metric] joining the given metrics with the logical and operator.
func And(metrics ...Metric) AndMetric {
	return AndMetric{
		metrics: metrics,
	}
}

// Healthy implements the [Metric] interface.
func (m AndMetric) Healthy(ctx context.Context) bool {
	for _, metric := range m.metrics {
		if !metric.Healthy(ctx) {
			return false
		}
	}
	return true
}
