// Package graph holds the content tree: a mapping from virtual path to Blob.
// Source documents and everything derived from them live side by side in one
// Tree; the Publish flag on each Blob decides what reaches the output.
package graph

import (
	"errors"
	"sort"
)

var ErrNotFound = errors.New("path not found")

// Blob is one piece of content in the tree.
// Blobs are values: replace them, never mutate Content in place.
type Blob struct {
	Content []byte
	MIME    string
	// Publish marks final artifacts. Intermediate blobs stay in the tree
	// for later rules but are never written out or served.
	Publish bool
}

// Size returns the byte length of the content.
func (b Blob) Size() int64 {
	return int64(len(b.Content))
}

// Tree maps paths to blobs. Insert is last-write-wins per path.
// A Tree is not safe for concurrent mutation; the build executor and the
// pipeline consumer each own theirs.
type Tree struct {
	entries map[Path]Blob
}

func NewTree() *Tree {
	return &Tree{entries: make(map[Path]Blob)}
}

// Insert stores b at p, replacing any previous blob.
func (t *Tree) Insert(p Path, b Blob) {
	t.entries[p] = b
}

// Get returns the blob at p or ErrNotFound.
func (t *Tree) Get(p Path) (Blob, error) {
	b, ok := t.entries[p]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return b, nil
}

// Lookup is Get without the error.
func (t *Tree) Lookup(p Path) (Blob, bool) {
	b, ok := t.entries[p]
	return b, ok
}

// Has reports whether p is present.
func (t *Tree) Has(p Path) bool {
	_, ok := t.entries[p]
	return ok
}

// Remove deletes p and reports whether it was present.
func (t *Tree) Remove(p Path) bool {
	if _, ok := t.entries[p]; !ok {
		return false
	}
	delete(t.entries, p)
	return true
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	return len(t.entries)
}

// Paths returns every path in lexical order.
func (t *Tree) Paths() []Path {
	paths := make([]Path, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

// Walk calls fn for every entry in lexical path order and stops at the
// first error.
func (t *Tree) Walk(fn func(p Path, b Blob) error) error {
	for _, p := range t.Paths() {
		if err := fn(p, t.entries[p]); err != nil {
			return err
		}
	}
	return nil
}

// Merge copies every entry of other into t, overwriting on conflict.
func (t *Tree) Merge(other *Tree) {
	for p, b := range other.entries {
		t.entries[p] = b
	}
}

// Clone returns a shallow copy. Blob contents are shared, which is safe
// because blobs are never mutated.
func (t *Tree) Clone() *Tree {
	c := &Tree{entries: make(map[Path]Blob, len(t.entries))}
	for p, b := range t.entries {
		c.entries[p] = b
	}
	return c
}

// Published returns a new tree holding only entries with Publish set.
func (t *Tree) Published() *Tree {
	out := NewTree()
	for p, b := range t.entries {
		if b.Publish {
			out.entries[p] = b
		}
	}
	return out
}

// Equal reports whether both trees hold the same paths with identical blobs.
func (t *Tree) Equal(other *Tree) bool {
	if len(t.entries) != len(other.entries) {
		return false
	}
	for p, a := range t.entries {
		b, ok := other.entries[p]
		if !ok || a.MIME != b.MIME || a.Publish != b.Publish || string(a.Content) != string(b.Content) {
			return false
		}
	}
	return true
}
