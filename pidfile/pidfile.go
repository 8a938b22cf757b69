// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package pidfile records the process id of the running server on disk.
package pidfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/z5labs/hellopool/lifecycle"
)

// WriteError occurs when the PID file could not be written.
type WriteError struct {
	Path  string
	Cause error
}

// Error implements the [error] interface.
func (e WriteError) Error() string {
	return fmt.Sprintf("failed to write pid file %s: %s", e.Path, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e WriteError) Unwrap() error {
	return e.Cause
}

// Write truncates, or creates, the file at path and writes pid to it
// in decimal followed by a newline.
func Write(path string, pid int) error {
	err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
	if err != nil {
		return WriteError{Path: path, Cause: err}
	}
	return nil
}

// Remove deletes the file at path. A file which does not exist is
// not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RemoveHook returns a [lifecycle.Hook] which removes the file at path.
func RemoveHook(path string) lifecycle.Hook {
	return lifecycle.HookFunc(func(ctx context.Context) error {
		return Remove(path)
	})
}
