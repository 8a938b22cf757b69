// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package appbuilder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/z5labs/hellopool"
	"github.com/z5labs/hellopool/config"
	"github.com/z5labs/hellopool/internal/try"

	"github.com/stretchr/testify/assert"
)

func TestRecover(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the underlying AppBuilder returns an error", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := Recover(hellopool.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (hellopool.App, error) {
				return nil, buildErr
			}))

			_, err := builder.Build(context.Background(), struct{}{})
			assert.Equal(t, buildErr, err)
		})

		t.Run("if the underlying AppBuilder panics with an error value", func(t *testing.T) {
			buildErr := errors.New("failed to build")
			builder := Recover(hellopool.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (hellopool.App, error) {
				panic(buildErr)
			}))

			_, err := builder.Build(context.Background(), struct{}{})
			assert.ErrorIs(t, err, buildErr)
		})

		t.Run("if the underlying AppBuilder panics with a non-error value", func(t *testing.T) {
			builder := Recover(hellopool.AppBuilderFunc[struct{}](func(ctx context.Context, cfg struct{}) (hellopool.App, error) {
				panic("hello world")
			}))

			_, err := builder.Build(context.Background(), struct{}{})

			var perr try.PanicError
			if !assert.ErrorAs(t, err, &perr) {
				return
			}
			assert.Equal(t, "hello world", perr.Value)
		})
	})
}

func TestFromConfig(t *testing.T) {
	type myConfig struct {
		Port uint `config:"port"`
	}

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the config source fails to apply", func(t *testing.T) {
			builder := FromConfig(hellopool.AppBuilderFunc[myConfig](func(ctx context.Context, cfg myConfig) (hellopool.App, error) {
				return nil, nil
			}))

			_, err := builder.Build(context.Background(), config.FromYaml(strings.NewReader("port: [")))

			var yerr config.InvalidYamlError
			assert.ErrorAs(t, err, &yerr)
		})

		t.Run("if the config can not be unmarshalled", func(t *testing.T) {
			builder := FromConfig(hellopool.AppBuilderFunc[myConfig](func(ctx context.Context, cfg myConfig) (hellopool.App, error) {
				return nil, nil
			}))

			_, err := builder.Build(context.Background(), config.Map{"port": "not a port"})
			assert.Error(t, err)
		})
	})
}
