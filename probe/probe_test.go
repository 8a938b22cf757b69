// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package probe

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastClient(opts ...Option) *http.Client {
	return NewClient(append([]Option{RetryWait(time.Millisecond, time.Millisecond)}, opts...)...)
}

func TestRun(t *testing.T) {
	t.Run("will write one line per response", func(t *testing.T) {
		t.Run("if every request succeeds", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, "Hello World!")
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := Run(context.Background(), fastClient(), srv.URL, 2, &out)
			require.NoError(t, err)
			require.Equal(t, "200 Hello World!\n200 Hello World!\n", out.String())
		})

		t.Run("if the server answers with a client error", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, "404 Not Found\n")
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := Run(context.Background(), fastClient(), srv.URL, 1, &out)
			require.NoError(t, err)
			require.Equal(t, "404 404 Not Found\n\n", out.String())
		})
	})

	t.Run("will retry", func(t *testing.T) {
		t.Run("if the server fails a few times before succeeding", func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) < 3 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				io.WriteString(w, "Hello, probe")
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := Run(context.Background(), fastClient(MaxAttempts(3)), srv.URL, 1, &out)
			require.NoError(t, err)
			require.Equal(t, "200 Hello, probe\n", out.String())
			require.Equal(t, int32(3), hits.Load())
		})
	})

	t.Run("will return a RequestError", func(t *testing.T) {
		t.Run("if the server keeps failing", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			var out bytes.Buffer
			err := Run(context.Background(), fastClient(MaxAttempts(2)), srv.URL, 1, &out)

			var rerr RequestError
			require.ErrorAs(t, err, &rerr)
			require.Equal(t, 1, rerr.N)

			var serr StatusCodeError
			require.ErrorAs(t, err, &serr)
			require.Equal(t, http.StatusInternalServerError, serr.Code)
			require.Empty(t, out.String())
		})

		t.Run("if the context is already cancelled", func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := Run(ctx, fastClient(), "http://127.0.0.1:1", 3, io.Discard)
			require.ErrorIs(t, err, context.Canceled)
		})
	})

	t.Run("will return a CircuitOpenError", func(t *testing.T) {
		t.Run("if enough consecutive requests failed", func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer srv.Close()

			client := fastClient(MaxAttempts(1), TripAfter(2), OpenFor(time.Minute))

			err := Run(context.Background(), client, srv.URL, 3, io.Discard)

			var cerr CircuitOpenError
			require.ErrorAs(t, err, &cerr)
			require.NotEmpty(t, cerr.Error())
			require.Equal(t, int32(2), hits.Load())
		})
	})
}
