// Package ingest materializes content trees from real directories.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/agentic-research/quire/internal/graph"
)

var (
	// ErrIrregularFile is returned for anything that is neither a directory
	// nor a regular file (sockets, devices, symlinks to either).
	ErrIrregularFile = errors.New("irregular file")
	// ErrInvalidPath is returned for real paths that are not valid UTF-8.
	ErrInvalidPath = errors.New("path is not valid UTF-8")
)

// Filter decides whether a file belongs in the tree. content is nil when
// only the path is known (watcher checks, removals), so filters that look
// at content must accept a nil slice.
type Filter func(p graph.Path, content []byte) bool

// DirMap maps one real directory into the virtual tree.
type DirMap struct {
	// Source is the real directory.
	Source string
	// Prefix is where Source appears in the virtual tree.
	Prefix graph.Path
	// Publish is the default publish flag for loaded blobs.
	Publish bool
	// Filter selects files. nil accepts everything.
	Filter Filter
	// Prune skips whole directories by virtual path. nil prunes nothing.
	Prune func(dir graph.Path) bool
}

// Accept applies the filter.
func (m DirMap) Accept(p graph.Path, content []byte) bool {
	if m.Filter == nil {
		return true
	}
	return m.Filter(p, content)
}

// Pruned reports whether the directory at dir should be skipped.
func (m DirMap) Pruned(dir graph.Path) bool {
	return m.Prune != nil && m.Prune(dir)
}

// prunedAbove reports whether any directory between the prefix and p is
// pruned.
func (m DirMap) prunedAbove(p graph.Path) bool {
	root := m.prefix()
	for d := p.Dir(); d != root && d.Under(root); d = d.Dir() {
		if m.Pruned(d) {
			return true
		}
	}
	return false
}

func (m DirMap) prefix() graph.Path {
	if m.Prefix == "" {
		return graph.Root
	}
	return m.Prefix
}

// Virtual maps a path relative to Source (OS separators) to its virtual path.
func (m DirMap) Virtual(rel string) (graph.Path, error) {
	if !utf8.ValidString(rel) {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}
	return m.prefix().Join(filepath.ToSlash(rel)), nil
}

// VirtualFromReal maps an absolute real path under Source to its virtual path.
func (m DirMap) VirtualFromReal(realPath string) (graph.Path, error) {
	rel, err := filepath.Rel(m.Source, realPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", realPath, m.Source)
	}
	return m.Virtual(rel)
}

// Real maps a virtual path back to its real location. ok is false if p is
// outside this map's prefix.
func (m DirMap) Real(p graph.Path) (string, bool) {
	rel, ok := p.Rel(m.prefix())
	if !ok {
		return "", false
	}
	return filepath.Join(m.Source, filepath.FromSlash(rel)), true
}
