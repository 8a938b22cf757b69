// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle provides helpers for defining actions to execute
// relative to the execution of a [hellopool.App].
package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// Hook represents functionality that needs to be performed
// at a specific "time" relative to the execution of [hellopool.App.Run].
type Hook interface {
	Run(context.Context) error
}

// HookFunc is a func variant of the [Hook] interface.
type HookFunc func(context.Context) error

// Run implements the [Hook] interface.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type multiHook []Hook

func (mh multiHook) Run(ctx context.Context) error {
	errs := make([]error, 0, len(mh))
	for _, h := range mh {
		err := h.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// MultiHook returns a [Hook] that's the logical concatenation
// of the provided [Hook]s. They're applied sequentially and every
// one of them runs even if an earlier one fails.
func MultiHook(hooks ...Hook) Hook {
	return multiHook(hooks)
}

// Context collects the actions which should be performed once the
// server has stopped, e.g. removing the PID file or flushing telemetry.
type Context struct {
	mu       sync.Mutex
	postRuns multiHook
}

// PostRun returns the [Hook] which is meant to be executed after
// [hellopool.App.Run] returns.
func (c *Context) PostRun() Hook {
	c.mu.Lock()
	defer c.mu.Unlock()

	hooks := make(multiHook, len(c.postRuns))
	copy(hooks, c.postRuns)
	return hooks
}

// OnPostRun registers the given [Hook] to be executed after [hellopool.App.Run]
// returns. Hooks run in the order they were registered.
func (c *Context) OnPostRun(hook Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.postRuns = append(c.postRuns, hook)
}

type key struct{}

var contextKey = &key{}

// NewContext returns a new [context.Context] containing the lifecycle [Context].
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey, c)
}

// FromContext tries to extract a lifecycle [Context] from the given [context.Context].
func FromContext(ctx context.Context) (*Context, bool) {
	lc, ok := ctx.Value(contextKey).(*Context)
	return lc, ok
}
