// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("will return false", func(t *testing.T) {
		t.Run("if no lifecycle Context was ever set", func(t *testing.T) {
			_, ok := FromContext(context.Background())
			require.False(t, ok)
		})
	})
}

func TestContext_PostRun(t *testing.T) {
	t.Run("will return a no-op Hook", func(t *testing.T) {
		t.Run("if no hooks were registered", func(t *testing.T) {
			var lc Context

			err := lc.PostRun().Run(context.Background())
			require.NoError(t, err)
		})
	})

	t.Run("will not run hooks registered afterwards", func(t *testing.T) {
		t.Run("if PostRun was already called", func(t *testing.T) {
			var lc Context
			var calls int
			lc.OnPostRun(HookFunc(func(ctx context.Context) error {
				calls++
				return nil
			}))

			hook := lc.PostRun()
			lc.OnPostRun(HookFunc(func(ctx context.Context) error {
				calls += 10
				return nil
			}))

			err := hook.Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, 1, calls)
		})
	})
}
