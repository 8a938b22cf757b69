// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package key names the location of a value within nested config maps.
package key

import "strings"

// Keyer is implemented by every key type a config store accepts.
type Keyer interface {
	Key() string
}

// Name is a single path segment.
type Name string

// Key implements the [Keyer] interface.
func (k Name) Key() string {
	return string(k)
}

// Chain is a path of segments from the root map, rendered dot separated.
type Chain []Keyer

// Key implements the [Keyer] interface.
func (k Chain) Key() string {
	var sb strings.Builder
	for i, seg := range k {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(seg.Key())
	}
	return sb.String()
}
