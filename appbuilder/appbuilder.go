// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package appbuilder provides middleware for [hellopool.AppBuilder] implementations.
package appbuilder

import (
	"context"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/config"
	"github.com/z5labs/hellopool/internal/try"
)

// Recover will wrap the given [hellopool.AppBuilder] with panic recovery.
func Recover[T any](builder hellopool.AppBuilder[T]) hellopool.AppBuilder[T] {
	return hellopool.AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ hellopool.App, err error) {
		defer try.Recover(&err)

		return builder.Build(ctx, cfg)
	})
}

// FromConfig returns a [hellopool.AppBuilder] which unmarshals
// the given [hellopool.AppBuilder]s input type, T, from a [config.Source].
func FromConfig[T any](builder hellopool.AppBuilder[T]) hellopool.AppBuilder[config.Source] {
	return hellopool.AppBuilderFunc[config.Source](func(ctx context.Context, src config.Source) (hellopool.App, error) {
		m, err := config.Read(src)
		if err != nil {
			return nil, err
		}

		var cfg T
		err = m.Unmarshal(&cfg)
		if err != nil {
			return nil, err
		}

		return builder.Build(ctx, cfg)
	})
}
