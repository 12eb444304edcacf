package graph

import (
	"path"
	"strings"
)

// Path is a slash-rooted virtual identifier such as "/blog/post.md".
// Paths are compared as strings, so they must be built through Clean or Join.
type Path string

// Root is the virtual root directory.
const Root Path = "/"

// Clean normalizes s into a Path: leading slash, no "." or ".." segments,
// no trailing slash (except for the root itself).
func Clean(s string) Path {
	return Path(path.Clean("/" + s))
}

// Join appends elements to p and cleans the result.
func (p Path) Join(elem ...string) Path {
	return Clean(path.Join(append([]string{string(p)}, elem...)...))
}

// Dir returns the parent directory of p. The parent of Root is Root.
func (p Path) Dir() Path {
	return Path(path.Dir(string(p)))
}

// Base returns the last element of p.
func (p Path) Base() string {
	return path.Base(string(p))
}

// Ext returns the file extension of p including the dot, or "".
func (p Path) Ext() string {
	return path.Ext(string(p))
}

// WithExt replaces the extension of p. "/a/b.md" with ".html" is "/a/b.html".
func (p Path) WithExt(ext string) Path {
	return Path(strings.TrimSuffix(string(p), p.Ext()) + ext)
}

// Under reports whether p is prefix itself or lies beneath it.
func (p Path) Under(prefix Path) bool {
	if prefix == Root || p == prefix {
		return true
	}
	return strings.HasPrefix(string(p), string(prefix)+"/")
}

// Rel returns p relative to prefix without a leading slash.
// ok is false if p is not under prefix.
func (p Path) Rel(prefix Path) (rel string, ok bool) {
	if !p.Under(prefix) {
		return "", false
	}
	if prefix == Root {
		return strings.TrimPrefix(string(p), "/"), true
	}
	return strings.TrimPrefix(strings.TrimPrefix(string(p), string(prefix)), "/"), true
}

// Segments splits p into its non-empty elements. Root has none.
func (p Path) Segments() []string {
	if p == Root || p == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(string(p), "/"), "/")
}

// Resolve interprets ref relative to the directory containing p.
// Absolute refs ("/img/a.png") are cleaned as-is.
func (p Path) Resolve(ref string) Path {
	if strings.HasPrefix(ref, "/") {
		return Clean(ref)
	}
	return p.Dir().Join(ref)
}

func (p Path) String() string { return string(p) }
