package confwatch

import "strings"

// normalize rebuilds an absolute path component by component, collapsing
// duplicate and trailing separators while preserving "." and ".." literally.
// Symlink expansion keys its seen-set on the resulting text, and lexical
// cleaning would fold ".." across symlinks, so filepath.Clean must not be
// used here. Panics when handed a relative path: callers establish
// absoluteness at startup.
func normalize(p string) string {
	if !strings.HasPrefix(p, "/") {
		panic("confwatch: attempted to normalize a relative path: " + p)
	}
	var b strings.Builder
	b.Grow(len(p))
	for _, component := range strings.Split(p, "/") {
		if component == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(component)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// parentDir returns the lexical parent of a normalized absolute path:
// everything before the final component, with no cleaning applied. The root
// has no parent, reported by the second return.
func parentDir(p string) (string, bool) {
	if p == "/" {
		return "", false
	}
	i := strings.LastIndexByte(p, '/')
	if i == 0 {
		return "/", true
	}
	return p[:i], true
}

// baseName returns the final component of a normalized absolute path.
func baseName(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// resolveLink resolves a symlink's target path: relative targets are joined
// against the link's own parent directory. The result is normalized.
func resolveLink(linkPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return normalize(target)
	}
	dir, ok := parentDir(linkPath)
	if !ok {
		dir = "/"
	}
	return normalize(dir + "/" + target)
}

// ancestors returns p and every lexical ancestor of p up to and including
// the root.
func ancestors(p string) []string {
	out := []string{p}
	for {
		parent, ok := parentDir(p)
		if !ok {
			return out
		}
		out = append(out, parent)
		p = parent
	}
}
