package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	cases := map[string]Path{
		"":              "/",
		"/":             "/",
		"blog/a.md":     "/blog/a.md",
		"/blog/":        "/blog",
		"/blog/../x.md": "/x.md",
		"//a//b":        "/a/b",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), "Clean(%q)", in)
	}
}

func TestPath_Helpers(t *testing.T) {
	p := Clean("/blog/post.md")
	assert.Equal(t, Path("/blog"), p.Dir())
	assert.Equal(t, "post.md", p.Base())
	assert.Equal(t, ".md", p.Ext())
	assert.Equal(t, Path("/blog/post.html"), p.WithExt(".html"))
	assert.Equal(t, Path("/blog/img/a.png"), p.Resolve("img/a.png"))
	assert.Equal(t, Path("/img/a.png"), p.Resolve("../img/a.png"))
	assert.Equal(t, Path("/abs.png"), p.Resolve("/abs.png"))
	assert.Equal(t, []string{"blog", "post.md"}, p.Segments())
	assert.Nil(t, Root.Segments())
}

func TestPath_Under(t *testing.T) {
	assert.True(t, Clean("/blog/a.md").Under("/blog"))
	assert.True(t, Clean("/blog").Under("/blog"))
	assert.True(t, Clean("/anything").Under(Root))
	assert.False(t, Clean("/blogroll/a.md").Under("/blog"))

	rel, ok := Clean("/blog/x/a.md").Rel("/blog")
	require.True(t, ok)
	assert.Equal(t, "x/a.md", rel)

	rel, ok = Clean("/a.md").Rel(Root)
	require.True(t, ok)
	assert.Equal(t, "a.md", rel)

	_, ok = Clean("/other").Rel("/blog")
	assert.False(t, ok)
}

func TestTree_InsertIsLastWriteWins(t *testing.T) {
	tree := NewTree()
	tree.Insert("/a", Blob{Content: []byte("one")})
	tree.Insert("/a", Blob{Content: []byte("two"), Publish: true})

	b, err := tree.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, "two", string(b.Content))
	assert.True(t, b.Publish)
	assert.Equal(t, 1, tree.Len())
}

func TestTree_GetMissing(t *testing.T) {
	_, err := NewTree().Get("/nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTree_PathsSorted(t *testing.T) {
	tree := NewTree()
	for _, p := range []Path{"/c", "/a/b", "/b", "/a"} {
		tree.Insert(p, Blob{})
	}
	assert.Equal(t, []Path{"/a", "/a/b", "/b", "/c"}, tree.Paths())
}

func TestTree_Published(t *testing.T) {
	tree := NewTree()
	tree.Insert("/src.md", Blob{Content: []byte("# hi")})
	tree.Insert("/out.html", Blob{Content: []byte("<h1>hi</h1>"), Publish: true})

	pub := tree.Published()
	assert.Equal(t, []Path{"/out.html"}, pub.Paths())
	assert.Equal(t, 2, tree.Len(), "Published must not modify the source tree")
}

func TestTree_CloneIsIndependent(t *testing.T) {
	tree := NewTree()
	tree.Insert("/a", Blob{Content: []byte("a")})

	c := tree.Clone()
	c.Insert("/b", Blob{})
	assert.True(t, c.Remove("/a"))

	assert.True(t, tree.Has("/a"))
	assert.False(t, tree.Has("/b"))
	assert.False(t, c.Remove("/a"))
}

func TestTree_MergeAndEqual(t *testing.T) {
	a := NewTree()
	a.Insert("/x", Blob{Content: []byte("1"), MIME: "text/plain"})

	b := NewTree()
	b.Insert("/x", Blob{Content: []byte("2"), MIME: "text/plain"})
	b.Insert("/y", Blob{Publish: true})

	a.Merge(b)
	assert.True(t, a.Equal(b))

	a.Insert("/y", Blob{Publish: false})
	assert.False(t, a.Equal(b))
}

func TestTree_WalkStopsOnError(t *testing.T) {
	tree := NewTree()
	tree.Insert("/a", Blob{})
	tree.Insert("/b", Blob{})

	stop := errors.New("stop")
	var seen []Path
	err := tree.Walk(func(p Path, _ Blob) error {
		seen = append(seen, p)
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []Path{"/a"}, seen)
}
