// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides middleware for [hellopool.App] implementations.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/internal/try"
	"github.com/z5labs/hellopool/lifecycle"
)

// Recover will wrap the given [hellopool.App] with panic recovery.
// The recovered value is returned as a [try.PanicError].
func Recover(app hellopool.App) hellopool.App {
	return hellopool.AppFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// WithSignalNotifications wraps a given [hellopool.App] in an implementation
// that cancels the [context.Context] that's passed to app.Run if an [os.Signal]
// is received by the running process.
func WithSignalNotifications(app hellopool.App, signals ...os.Signal) hellopool.App {
	return hellopool.AppFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// PostRun wraps a given [hellopool.App] in an implementation that always
// runs hook once app.Run returns, even if it panics.
func PostRun(app hellopool.App, hook lifecycle.Hook) hellopool.App {
	return hellopool.AppFunc(func(ctx context.Context) (err error) {
		defer runPostRunHook(ctx, hook, &err)

		return app.Run(ctx)
	})
}

func runPostRunHook(ctx context.Context, hook lifecycle.Hook, err *error) {
	if hook == nil {
		return
	}

	// re-panics after the hook so outer middleware still observe it
	r := recover()
	hookErr := hook.Run(context.WithoutCancel(ctx))
	if r != nil {
		panic(r)
	}

	// errors.Join will not return an error if both
	// *err and hookErr are nil.
	*err = errors.Join(*err, hookErr)
}
