package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/quire/api"
	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/pipeline"
	"github.com/agentic-research/quire/internal/serve"
)

const (
	alphaMD = "---\ntitle: Alpha post\ndate: 2024-01-02\n---\nfirst\n"
	betaMD  = "# Beta post\n\nsecond\n"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

// blogSite is a content mount with two posts and an index over them.
func blogSite(t *testing.T) (*api.Site, string) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"content/blog/a.md": alphaMD,
		"content/blog/b.md": betaMD,
	})
	cfg := api.DefaultSite(dir)
	cfg.Indexes = []api.Index{{Name: "blog", Pattern: "/blog/*.md", Output: "/blog.html", Title: "Blog"}}
	return cfg, filepath.Join(dir, "content")
}

func newSite(t *testing.T, cfg *api.Site) *Site {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func newCache(t *testing.T) *build.Cache {
	t.Helper()
	c, err := build.NewCache(build.DefaultCacheSize)
	require.NoError(t, err)
	return c
}

func TestBuild_BlogScenario(t *testing.T) {
	cfg, content := blogSite(t)
	s := newSite(t, cfg)

	tree, err := s.Build(newCache(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{"/blog.html", "/blog/a.html", "/blog/a.md", "/blog/b.html", "/blog/b.md"}, tree.Paths())
	assert.Equal(t, []graph.Path{"/blog.html", "/blog/a.html", "/blog/b.html"}, tree.Published().Paths())

	index, err := tree.Get("/blog.html")
	require.NoError(t, err)
	assert.Contains(t, string(index.Content), `<a href="blog/a.html">Alpha post</a>`)
	assert.Contains(t, string(index.Content), `<a href="blog/b.html">Beta post</a>`)
	assert.Contains(t, string(index.Content), `<time datetime="2024-01-02">`)

	page, err := tree.Get("/blog/b.html")
	require.NoError(t, err)
	assert.Equal(t, htmlMIME, page.MIME)
	assert.Contains(t, string(page.Content), "<title>Beta post</title>")

	require.NoError(t, os.Remove(filepath.Join(content, "blog", "b.md")))
	tree, err = s.Build(newCache(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{"/blog.html", "/blog/a.html"}, tree.Published().Paths())
	index, err = tree.Get("/blog.html")
	require.NoError(t, err)
	assert.Contains(t, string(index.Content), "Alpha post")
	assert.NotContains(t, string(index.Content), "Beta post")
}

func TestPipeline_BlogScenario(t *testing.T) {
	cfg, content := blogSite(t)
	s := newSite(t, cfg)

	procs, err := s.Processors(newCache(t), nil)
	require.NoError(t, err)
	state := serve.NewState()
	p := pipeline.New(state, procs...)
	require.NoError(t, p.Start())

	for _, name := range []string{"a.md", "b.md"} {
		require.NoError(t, p.Dispatch(pipeline.Modified(
			graph.Path("/blog/"+name), filepath.Join(content, "blog", name))))
	}
	assert.Equal(t, []graph.Path{"/blog.html", "/blog/a.html", "/blog/b.html"}, state.Paths())
	assert.Equal(t, 5, p.Index.Tree().Len())

	// Both modes agree on the published tree.
	built, err := s.Build(newCache(t), nil)
	require.NoError(t, err)
	for _, path := range built.Published().Paths() {
		want, _ := built.Lookup(path)
		got, ok := state.Get(path)
		require.True(t, ok, path)
		assert.Equal(t, string(want.Content), string(got.Content), path)
	}

	realPath := filepath.Join(content, "blog", "b.md")
	require.NoError(t, os.Remove(realPath))
	require.NoError(t, p.Dispatch(pipeline.Deleted("/blog/b.md", realPath)))

	assert.Equal(t, []graph.Path{"/blog.html", "/blog/a.html"}, state.Paths())
	index, ok := state.Get("/blog.html")
	require.True(t, ok)
	assert.Contains(t, string(index.Content), "Alpha post")
	assert.NotContains(t, string(index.Content), "Beta post")
}

func TestBuild_DraftsStayUnpublished(t *testing.T) {
	cfg, content := blogSite(t)
	writeFiles(t, content, map[string]string{
		"blog/c.md": "---\ntitle: Gamma\ndraft: true\n---\nwip\n",
	})
	tree, err := newSite(t, cfg).Build(newCache(t), nil)
	require.NoError(t, err)

	draft, err := tree.Get("/blog/c.html")
	require.NoError(t, err)
	assert.False(t, draft.Publish)

	index, err := tree.Get("/blog.html")
	require.NoError(t, err)
	assert.NotContains(t, string(index.Content), "Gamma")
}

func TestBuild_CompressAndStylesheet(t *testing.T) {
	cfg, _ := blogSite(t)
	cfg.Compress = []string{"gzip", "zstd"}
	cfg.Highlight = &api.Highlight{Style: "monokai", Classes: true}
	tree, err := newSite(t, cfg).Build(newCache(t), nil)
	require.NoError(t, err)

	for _, p := range []graph.Path{"/blog.html.gz", "/blog/a.html.zst", StylesheetPath, StylesheetPath + ".gz"} {
		b, err := tree.Get(p)
		require.NoError(t, err, p)
		assert.True(t, b.Publish, p)
	}
	gz, err := tree.Get("/blog/a.html.gz")
	require.NoError(t, err)
	assert.Equal(t, "application/gzip", gz.MIME)

	// Sources are never compressed.
	assert.False(t, tree.Has("/blog/a.md.gz"))

	page, err := tree.Get("/blog/a.html")
	require.NoError(t, err)
	assert.Contains(t, string(page.Content), `href="../assets/highlight.css"`)
}

func TestBuild_GoListingAndStatic(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"content/code/main.go":     "package main\nfunc main(){}\n",
		"content/post.md":          "# Post\n\n![diagram](img/d.png)\n",
		"static/img/d.png":         "\x89PNG\r\n\x1a\n\x00\x00",
		"static/robots.txt":        "User-agent: *\n",
		"content/.git/config":      "hidden",
		"content/drafts/.notes.md": "hidden",
	})
	cfg := api.DefaultSite(dir)
	tree, err := newSite(t, cfg).Build(newCache(t), nil)
	require.NoError(t, err)

	assert.Equal(t, []graph.Path{"/code/main.go.html", "/img/d.png", "/post.html", "/robots.txt"}, tree.Published().Paths())
	assert.False(t, tree.Has("/.git/config"))
	assert.False(t, tree.Has("/drafts/.notes.md"))

	listing, err := tree.Get("/code/main.go.html")
	require.NoError(t, err)
	assert.Contains(t, string(listing.Content), "<title>main.go</title>")
}

func TestBuild_MissingImageFails(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"content/post.md": "![x](missing.png)\n"})
	_, err := newSite(t, api.DefaultSite(dir)).Build(newCache(t), nil)
	var re *build.RuleError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "markdown", re.Rule)
}

func TestPipeline_ImageArrivalRebuildsPage(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"content/post.md": "![x](d.png)\n"})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "static"), 0o755))
	s := newSite(t, api.DefaultSite(dir))

	procs, err := s.Processors(newCache(t), nil)
	require.NoError(t, err)
	state := serve.NewState()
	p := pipeline.New(state, procs...)
	require.NoError(t, p.Start())

	require.NoError(t, p.Dispatch(pipeline.Modified("/post.md", filepath.Join(dir, "content", "post.md"))))
	assert.Empty(t, state.Paths())

	img := filepath.Join(dir, "static", "d.png")
	require.NoError(t, os.WriteFile(img, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	require.NoError(t, p.Dispatch(pipeline.Modified("/d.png", img)))
	assert.Equal(t, []graph.Path{"/d.png", "/post.html"}, state.Paths())
}

func TestImageDeps(t *testing.T) {
	s := newSite(t, &api.Site{Mounts: []api.Mount{{Name: "c", Source: "c", Prefix: "/"}}})
	doc, err := s.md.Parse([]byte("![a](img/a.png) ![b](/shared/b.png) ![a again](img/a.png) ![remote](https://x.test/c.png)"))
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{"/blog/img/a.png", "/shared/b.png"}, imageDeps("/blog/post.md", doc))
}

func TestNew_RejectsUnknownEncoding(t *testing.T) {
	cfg := &api.Site{Compress: []string{"lz4"}, Mounts: []api.Mount{{Name: "c", Source: "c", Prefix: "/"}}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestOverlay_BothModesAgree(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"content/notes.txt": "private notes",
		"static/notes.txt":  "public notes",
	})
	s := newSite(t, api.DefaultSite(dir))
	contentCopy := filepath.Join(dir, "content", "notes.txt")
	staticCopy := filepath.Join(dir, "static", "notes.txt")

	servedMatchesBuild := func(t *testing.T, state *serve.State) {
		t.Helper()
		built, err := s.Build(newCache(t), nil)
		require.NoError(t, err)
		assert.Equal(t, built.Published().Paths(), state.Paths())
		for _, p := range built.Published().Paths() {
			want, _ := built.Lookup(p)
			got, ok := state.Get(p)
			require.True(t, ok, p)
			assert.Equal(t, string(want.Content), string(got.Content), p)
		}
	}

	procs, err := s.Processors(newCache(t), nil)
	require.NoError(t, err)
	state := serve.NewState()
	p := pipeline.New(state, procs...)
	require.NoError(t, p.Start())

	// The static burst may land before the content one.
	require.NoError(t, p.Dispatch(pipeline.Modified("/notes.txt", staticCopy)))
	require.NoError(t, p.Dispatch(pipeline.Modified("/notes.txt", contentCopy)))
	got, ok := state.Get("/notes.txt")
	require.True(t, ok)
	assert.Equal(t, "public notes", string(got.Content))
	servedMatchesBuild(t, state)

	require.NoError(t, os.Remove(contentCopy))
	require.NoError(t, p.Dispatch(pipeline.Deleted("/notes.txt", contentCopy)))
	servedMatchesBuild(t, state)

	require.NoError(t, os.Remove(staticCopy))
	require.NoError(t, p.Dispatch(pipeline.Deleted("/notes.txt", staticCopy)))
	assert.Empty(t, state.Paths())
	servedMatchesBuild(t, state)
}
