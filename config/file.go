// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"io/fs"
)

// FileReader defers opening a file until it is first read, so a
// missing config file surfaces as an error from the [Source] reading it.
type FileReader struct {
	fsys fs.FS
	name string

	f   fs.File
	err error
}

// NewFileReader returns a FileReader for name within fsys.
func NewFileReader(fsys fs.FS, name string) *FileReader {
	return &FileReader{
		fsys: fsys,
		name: name,
	}
}

// Read implements the [io.Reader] interface.
func (r *FileReader) Read(b []byte) (int, error) {
	if r.f == nil && r.err == nil {
		r.f, r.err = r.fsys.Open(r.name)
	}
	if r.err != nil {
		return 0, r.err
	}
	return r.f.Read(b)
}

// Close implements the [io.Closer] interface. Reads after Close
// return [fs.ErrClosed].
func (r *FileReader) Close() error {
	f := r.f
	r.f, r.err = nil, fs.ErrClosed
	if f == nil {
		return nil
	}
	return f.Close()
}
