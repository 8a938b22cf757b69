// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package hellopool

import (
	"context"
	"errors"
	"fmt"

	"github.com/z5labs/hellopool/config"
	"github.com/z5labs/hellopool/lifecycle"
)

// App represents the entry point for user specific code.
type App interface {
	Run(context.Context) error
}

// AppFunc is a func variant of the [App] interface.
type AppFunc func(context.Context) error

// Run implements the [App] interface.
func (f AppFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// AppBuilder represents anything which can initialize an [App].
type AppBuilder[T any] interface {
	Build(ctx context.Context, cfg T) (App, error)
}

// AppBuilderFunc is a functional implementation of
// the [AppBuilder] interface.
type AppBuilderFunc[T any] func(context.Context, T) (App, error)

// Build implements the [AppBuilder] interface.
func (f AppBuilderFunc[T]) Build(ctx context.Context, cfg T) (App, error) {
	return f(ctx, cfg)
}

// Run executes the application. It's responsible for reading the provided
// config sources, unmarshalling them into the generic config type, using
// the config and builder to build the users [App] and, lastly, running the
// returned [App].
//
// A [lifecycle.Context] is made available to the builder. Every PostRun
// hook registered on it is executed once the [App] returns, or once the
// build fails, and its error is joined onto the returned error.
func Run[T any](ctx context.Context, builder AppBuilder[T], srcs ...config.Source) (err error) {
	m, err := config.Read(srcs...)
	if err != nil {
		return ConfigReadError{Cause: err}
	}

	var cfg T
	err = m.Unmarshal(&cfg)
	if err != nil {
		return ConfigUnmarshalError{Cause: err}
	}

	lc := &lifecycle.Context{}
	ctx = lifecycle.NewContext(ctx, lc)
	defer func() {
		// hooks must still run after the app context was cancelled
		hookErr := lc.PostRun().Run(context.WithoutCancel(ctx))
		if hookErr == nil {
			return
		}
		err = errors.Join(err, PostRunError{Cause: hookErr})
	}()

	app, err := builder.Build(ctx, cfg)
	if err != nil {
		return AppBuildError{Cause: err}
	}

	err = app.Run(ctx)
	if err != nil {
		return AppRunError{Cause: err}
	}
	return nil
}

// ConfigReadError occurs when any of the config sources fail to be read.
type ConfigReadError struct {
	Cause error
}

// Error implements the [error] interface.
func (e ConfigReadError) Error() string {
	return fmt.Sprintf("failed to read config source(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigReadError) Unwrap() error {
	return e.Cause
}

// ConfigUnmarshalError occurs when the merged config does not fit the config type.
type ConfigUnmarshalError struct {
	Cause error
}

// Error implements the [error] interface.
func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("failed to unmarshal read config source(s) into custom type: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ConfigUnmarshalError) Unwrap() error {
	return e.Cause
}

// AppBuildError
type AppBuildError struct {
	Cause error
}

// Error implements the [error] interface.
func (e AppBuildError) Error() string {
	return fmt.Sprintf("failed to build app: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e AppBuildError) Unwrap() error {
	return e.Cause
}

// AppRunError
type AppRunError struct {
	Cause error
}

// Error implements the [error] interface.
func (e AppRunError) Error() string {
	return fmt.Sprintf("failed to run app: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e AppRunError) Unwrap() error {
	return e.Cause
}

// PostRunError occurs when any of the registered PostRun hooks fail.
type PostRunError struct {
	Cause error
}

// Error implements the [error] interface.
func (e PostRunError) Error() string {
	return fmt.Sprintf("failed to run post run hook(s): %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e PostRunError) Unwrap() error {
	return e.Cause
}
