// Package json provides a JSON parser for confwatch.
package json

import (
	"encoding/json"
)

// Parse decodes data as JSON into a value of type T.
func Parse[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
