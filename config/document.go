// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"io"

	"github.com/z5labs/hellopool/internal/try"
)

// decodeFunc parses a whole document into a nested map. Syntax errors
// are returned already wrapped in the format specific error type.
type decodeFunc func([]byte) (map[string]any, error)

// applyDocument reads r to the end, closing it if it can be closed,
// and walks the decoded document into store.
func applyDocument(store Store, r io.Reader, decode decodeFunc) (err error) {
	defer try.Close(&err, r)

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	doc, err := decode(raw)
	if err != nil {
		return err
	}
	return Map(doc).Apply(store)
}
