// Package yaml provides a YAML parser for confwatch.
package yaml

import (
	yamlparser "github.com/goccy/go-yaml"
)

// Parse decodes data as YAML into a value of type T. Hand it to
// confwatch.WithParser to receive typed snapshots:
//
//	confwatch.WithParser(confwatch.New(path, "app config"), yaml.Parse[AppConfig])
func Parse[T any](data []byte) (T, error) {
	var out T
	if err := yamlparser.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
