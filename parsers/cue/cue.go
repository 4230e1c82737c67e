// Package cue provides a CUE parser for confwatch.
//
// CUE evaluation enforces the document's own constraints, so a config that
// stops validating is indistinguishable from one that stops parsing: the
// previous value stays live while the watcher logs and retries.
package cue

import (
	"cuelang.org/go/cue/cuecontext"
)

// Parse evaluates data as a CUE document and decodes the result into T.
// Incomplete or constraint-violating documents return an error.
func Parse[T any](data []byte) (T, error) {
	var out T
	val := cuecontext.New().CompileBytes(data)
	if err := val.Err(); err != nil {
		var zero T
		return zero, err
	}
	if err := val.Decode(&out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
