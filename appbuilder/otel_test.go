// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"
	"errors"
	"testing"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/lifecycle"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type failToInitOTel struct{}

var errFailedToInitOTel = errors.New("failed to init otel")

func (failToInitOTel) InitializeOTel(ctx context.Context) error {
	return errFailedToInitOTel
}

type noopInitOTel struct{}

func (noopInitOTel) InitializeOTel(ctx context.Context) error {
	return nil
}

type tracerProvider struct {
	tracenoop.TracerProvider
	shutdown func(context.Context) error
}

func (tp tracerProvider) Shutdown(ctx context.Context) error {
	return tp.shutdown(ctx)
}

type tracerProviderInitOTel struct{}

var errTracerProviderFailedShutdown = errors.New("failed to shutdown tracer provider")

func (tracerProviderInitOTel) InitializeOTel(ctx context.Context) error {
	otel.SetTracerProvider(tracerProvider{
		shutdown: func(ctx context.Context) error {
			return errTracerProviderFailedShutdown
		},
	})
	return nil
}

type meterProvider struct {
	metricnoop.MeterProvider
	shutdown func(context.Context) error
}

func (mp meterProvider) Shutdown(ctx context.Context) error {
	return mp.shutdown(ctx)
}

type meterProviderInitOTel struct{}

var errMeterProviderFailedShutdown = errors.New("failed to shutdown meter provider")

func (meterProviderInitOTel) InitializeOTel(ctx context.Context) error {
	otel.SetMeterProvider(meterProvider{
		shutdown: func(ctx context.Context) error {
			return errMeterProviderFailedShutdown
		},
	})
	return nil
}

func resetOTel(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	})
}

func noopApp() hellopool.App {
	return hellopool.AppFunc(func(ctx context.Context) error {
		return nil
	})
}

func TestOTel(t *testing.T) {
	t.Run("hellopool.AppBuilder will return an error", func(t *testing.T) {
		t.Run("if InitializeOTel fails", func(t *testing.T) {
			b := OTel(hellopool.AppBuilderFunc[failToInitOTel](func(ctx context.Context, cfg failToInitOTel) (hellopool.App, error) {
				return nil, nil
			}))

			_, err := b.Build(context.Background(), failToInitOTel{})
			assert.ErrorIs(t, err, errFailedToInitOTel)
		})

		t.Run("if the context is already cancelled", func(t *testing.T) {
			b := OTel(hellopool.AppBuilderFunc[noopInitOTel](func(ctx context.Context, cfg noopInitOTel) (hellopool.App, error) {
				return noopApp(), nil
			}))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := b.Build(ctx, noopInitOTel{})
			assert.ErrorIs(t, err, context.Canceled)
		})

		t.Run("if the given hellopool.AppBuilder fails", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			b := OTel(hellopool.AppBuilderFunc[noopInitOTel](func(ctx context.Context, cfg noopInitOTel) (hellopool.App, error) {
				return nil, buildErr
			}))

			_, err := b.Build(context.Background(), noopInitOTel{})
			assert.ErrorIs(t, err, buildErr)
		})
	})

	t.Run("the built hellopool.App will return an error", func(t *testing.T) {
		t.Run("if it fails to shutdown the tracer provider", func(t *testing.T) {
			resetOTel(t)

			b := OTel(hellopool.AppBuilderFunc[tracerProviderInitOTel](func(ctx context.Context, cfg tracerProviderInitOTel) (hellopool.App, error) {
				return noopApp(), nil
			}))

			app, err := b.Build(context.Background(), tracerProviderInitOTel{})
			if !assert.Nil(t, err) {
				return
			}

			err = app.Run(context.Background())
			assert.ErrorIs(t, err, errTracerProviderFailedShutdown)
		})

		t.Run("if it fails to shutdown the meter provider", func(t *testing.T) {
			resetOTel(t)

			b := OTel(hellopool.AppBuilderFunc[meterProviderInitOTel](func(ctx context.Context, cfg meterProviderInitOTel) (hellopool.App, error) {
				return noopApp(), nil
			}))

			app, err := b.Build(context.Background(), meterProviderInitOTel{})
			if !assert.Nil(t, err) {
				return
			}

			err = app.Run(context.Background())
			assert.ErrorIs(t, err, errMeterProviderFailedShutdown)
		})
	})

	t.Run("will register the shutdown as a post run hook", func(t *testing.T) {
		t.Run("if a lifecycle.Context is available", func(t *testing.T) {
			resetOTel(t)

			b := OTel(hellopool.AppBuilderFunc[tracerProviderInitOTel](func(ctx context.Context, cfg tracerProviderInitOTel) (hellopool.App, error) {
				return noopApp(), nil
			}))

			lc := &lifecycle.Context{}
			ctx := lifecycle.NewContext(context.Background(), lc)

			app, err := b.Build(ctx, tracerProviderInitOTel{})
			if !assert.Nil(t, err) {
				return
			}

			err = app.Run(ctx)
			if !assert.Nil(t, err) {
				return
			}

			err = lc.PostRun().Run(ctx)
			assert.ErrorIs(t, err, errTracerProviderFailedShutdown)
		})
	})
}
