package cue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type config struct {
	ListenAddr string   `json:"listen_addr"`
	Upstreams  []string `json:"upstreams"`
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := Parse[config]([]byte(`
listen_addr: ":8080"
upstreams: ["a", "b"]
`))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, []string{"a", "b"}, c.Upstreams)
}

func TestParseConstraintViolation(t *testing.T) {
	t.Parallel()

	// conflicting values fail evaluation, keeping the previous config live
	_, err := Parse[config]([]byte(`
listen_addr: ":8080"
listen_addr: ":9090"
`))
	require.Error(t, err)
}

func TestParseIncomplete(t *testing.T) {
	t.Parallel()

	// a constraint without a concrete value cannot be decoded
	_, err := Parse[config]([]byte(`listen_addr: string`))
	require.Error(t, err)
}
