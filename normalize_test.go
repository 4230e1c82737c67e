package confwatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"/":            "/",
		"/a":           "/a",
		"/a/b/c":       "/a/b/c",
		"//a//b/":      "/a/b",
		"/a/./b/../c":  "/a/./b/../c",
		"/a/b/c/":      "/a/b/c",
		"///":          "/",
		"/.":           "/.",
		"/..":          "/..",
		"/etc//passwd": "/etc/passwd",
	} {
		assert.Equalf(t, want, normalize(in), "normalize(%q)", in)
	}
}

func TestNormalizePanicsOnRelative(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { normalize("relative/path") })
	require.Panics(t, func() { normalize("") })
}

func TestParentDir(t *testing.T) {
	t.Parallel()

	p, ok := parentDir("/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "/a/b", p)

	p, ok = parentDir("/a")
	require.True(t, ok)
	assert.Equal(t, "/", p)

	_, ok = parentDir("/")
	assert.False(t, ok)

	// ".." components are plain components, no cleaning happens
	p, ok = parentDir("/a/b/../c")
	require.True(t, ok)
	assert.Equal(t, "/a/b/..", p)
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "c", baseName("/a/b/c"))
	assert.Equal(t, "a", baseName("/a"))
	assert.Equal(t, "..", baseName("/a/.."))
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/x/y", resolveLink("/a/b", "/x/y"))
	assert.Equal(t, "/a/target", resolveLink("/a/link", "target"))
	assert.Equal(t, "/a/../shared/cfg", resolveLink("/a/link", "../shared/cfg"))
	assert.Equal(t, "/top", resolveLink("/link", "top"))
}

func TestAncestors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"/a/b/c", "/a/b", "/a", "/"}, ancestors("/a/b/c"))
	assert.Equal(t, []string{"/"}, ancestors("/"))
}
