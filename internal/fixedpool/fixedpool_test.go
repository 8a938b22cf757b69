// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package fixedpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/z5labs/hellopool/internal/try"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWait(t *testing.T) {
	t.Run("will return nil", func(t *testing.T) {
		t.Run("if there are no tasks", func(t *testing.T) {
			err := Wait(context.Background())
			require.NoError(t, err)
		})

		t.Run("if every task succeeds", func(t *testing.T) {
			var counter atomic.Int32
			task := func(ctx context.Context) error {
				counter.Add(1)
				return nil
			}

			err := Wait(context.Background(), task, task, task)
			require.NoError(t, err)
			require.Equal(t, int32(3), counter.Load())
		})

		t.Run("if the parent context is already cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var executed atomic.Bool
			err := Wait(ctx, func(ctx context.Context) error {
				executed.Store(true)
				return nil
			})
			require.NoError(t, err)
			require.True(t, executed.Load())
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if one task fails", func(t *testing.T) {
			taskErr := errors.New("task error")

			err := Wait(
				context.Background(),
				func(ctx context.Context) error {
					return nil
				},
				func(ctx context.Context) error {
					return taskErr
				},
				func(ctx context.Context) error {
					<-ctx.Done()
					return nil
				},
			)
			require.ErrorIs(t, err, taskErr)
		})

		t.Run("if multiple tasks fail", func(t *testing.T) {
			err1 := errors.New("error 1")
			err2 := errors.New("error 2")

			err := Wait(
				context.Background(),
				func(ctx context.Context) error {
					return err1
				},
				func(ctx context.Context) error {
					return err2
				},
			)
			require.ErrorIs(t, err, err1)
			require.ErrorIs(t, err, err2)
		})

		t.Run("if a task panics with an error", func(t *testing.T) {
			panicErr := errors.New("panic error")

			err := Wait(context.Background(), func(ctx context.Context) error {
				panic(panicErr)
			})
			require.ErrorIs(t, err, panicErr)
		})

		t.Run("if a task panics with a non-error value", func(t *testing.T) {
			err := Wait(context.Background(), func(ctx context.Context) error {
				panic("panic string")
			})

			var perr try.PanicError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, "panic string", perr.Value)
		})
	})

	t.Run("will cancel the remaining tasks", func(t *testing.T) {
		t.Run("if one task fails", func(t *testing.T) {
			taskErr := errors.New("task error")
			var cancelled atomic.Bool

			err := Wait(
				context.Background(),
				func(ctx context.Context) error {
					return taskErr
				},
				func(ctx context.Context) error {
					<-ctx.Done()
					cancelled.Store(true)
					return nil
				},
			)
			require.ErrorIs(t, err, taskErr)
			require.True(t, cancelled.Load())
		})
	})

	t.Run("will run every task concurrently", func(t *testing.T) {
		const numTasks = 5

		var started sync.WaitGroup
		started.Add(numTasks)
		release := make(chan struct{})

		tasks := make([]Task, numTasks)
		for i := range tasks {
			tasks[i] = func(ctx context.Context) error {
				started.Done()
				<-release
				return nil
			}
		}

		done := make(chan error, 1)
		go func() {
			done <- Wait(context.Background(), tasks...)
		}()

		started.Wait()
		close(release)

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Wait did not return after all tasks were released")
		}
	})
}

func ExampleWait() {
	err := Wait(
		context.Background(),
		func(ctx context.Context) error {
			return nil
		},
		func(ctx context.Context) error {
			return nil
		},
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("all tasks completed")
	// Output: all tasks completed
}
