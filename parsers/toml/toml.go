// Package toml provides a TOML parser for confwatch.
package toml

import (
	tomlparser "github.com/pelletier/go-toml"
)

// Parse decodes data as TOML into a value of type T.
func Parse[T any](data []byte) (T, error) {
	var out T
	if err := tomlparser.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
