// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the attribute keys used across log records.
package slogfield

import (
	"log/slog"
	"time"
)

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// WorkerID returns the slog.Attr identifying a pool slot.
func WorkerID(id int) slog.Attr {
	return slog.Int("worker_id", id)
}

// RemoteAddr returns the slog.Attr for the peer of a connection.
func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}
