// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Yaml is a [Source] backed by a YAML document. The reader is closed
// once applied if it implements [io.Closer].
type Yaml struct {
	r io.Reader
}

// FromYaml returns a [Yaml] source reading from r.
func FromYaml(r io.Reader) Yaml {
	return Yaml{r: r}
}

// InvalidYamlError occurs when the document is not valid YAML.
type InvalidYamlError struct {
	Cause error
}

// Error implements the [error] interface.
func (e InvalidYamlError) Error() string {
	return fmt.Sprintf("invalid yaml: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e InvalidYamlError) Unwrap() error {
	return e.Cause
}

// Apply implements the [Source] interface.
func (src Yaml) Apply(store Store) error {
	return applyDocument(store, src.r, decodeYaml)
}

func decodeYaml(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, InvalidYamlError{Cause: err}
	}
	return doc, nil
}
