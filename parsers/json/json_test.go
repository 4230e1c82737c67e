package json

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

	c, err := Parse[config]([]byte(`{"listen_addr": ":8080", "upstreams": ["a", "b"]}`))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, []string{"a", "b"}, c.Upstreams)
}

func TestParseError(t *testing.T) {
	t.Parallel()

	_, err := Parse[config]([]byte(`{"listen_addr": `))
	require.Error(t, err)
}
