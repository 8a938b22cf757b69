// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"encoding/json"
	"fmt"
	"io"
)

// Json is a [Source] backed by a JSON object. The reader is closed
// once applied if it implements [io.Closer].
type Json struct {
	r io.Reader
}

// FromJson returns a [Json] source reading from r.
func FromJson(r io.Reader) Json {
	return Json{r: r}
}

// InvalidJsonError occurs when the document is not a valid JSON object.
type InvalidJsonError struct {
	Cause error
}

// Error implements the [error] interface.
func (e InvalidJsonError) Error() string {
	return fmt.Sprintf("invalid json: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidJsonError) Unwrap() error {
	return e.Cause
}

// Apply implements the [Source] interface.
func (src Json) Apply(store Store) error {
	return applyDocument(store, src.r, decodeJson)
}

func decodeJson(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, InvalidJsonError{Cause: err}
	}
	return doc, nil
}
