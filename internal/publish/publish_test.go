package publish

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/quire/internal/graph"
)

func siteTree() *graph.Tree {
	t := graph.NewTree()
	t.Insert("/blog/a.md", graph.Blob{Content: []byte("# A")})
	t.Insert("/blog/a.html", graph.Blob{Content: []byte("<h1>A</h1>"), MIME: "text/html", Publish: true})
	t.Insert("/blog.html", graph.Blob{Content: []byte("<ul></ul>"), MIME: "text/html", Publish: true})
	t.Insert("/assets/deep/x.css", graph.Blob{Content: []byte("body{}"), MIME: "text/css", Publish: true})
	return t
}

func TestWriteDir_OnlyPublished(t *testing.T) {
	fs := memfs.New()

	n, err := WriteDir(fs, siteTree())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := util.ReadFile(fs, "/blog/a.html")
	require.NoError(t, err)
	assert.Equal(t, "<h1>A</h1>", string(data))

	_, err = fs.Stat("/blog/a.md")
	assert.True(t, os.IsNotExist(err), "intermediate entries are never written")

	_, err = fs.Stat("/assets/deep/x.css")
	assert.NoError(t, err)
}

func TestWriteDir_OnDisk(t *testing.T) {
	dist := t.TempDir()
	_, err := WriteDir(osfs.New(dist), siteTree())
	require.NoError(t, err)

	var files []string
	require.NoError(t, filepath.Walk(dist, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(dist, p)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	}))
	assert.ElementsMatch(t, []string{"blog/a.html", "blog.html", "assets/deep/x.css"}, files)
}

func TestClean(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/stale/old.html", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/top.html", []byte("x"), 0o644))

	require.NoError(t, Clean(fs))
	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, Clean(osfs.New(filepath.Join(t.TempDir(), "missing"))))
}

func TestBundle_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "site.db")

	n, err := WriteBundle(dbPath, siteTree())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tree, err := ReadBundle(dbPath)
	require.NoError(t, err)
	assert.True(t, tree.Equal(siteTree().Published()))
}

func TestBundle_Overwrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "site.db")
	_, err := WriteBundle(dbPath, siteTree())
	require.NoError(t, err)

	small := graph.NewTree()
	small.Insert("/only.html", graph.Blob{Content: []byte("x"), Publish: true})
	_, err = WriteBundle(dbPath, small)
	require.NoError(t, err)

	tree, err := ReadBundle(dbPath)
	require.NoError(t, err)
	assert.Equal(t, []graph.Path{"/only.html"}, tree.Paths())
}

func TestBundle_DetectsCorruption(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "site.db")
	_, err := WriteBundle(dbPath, siteTree())
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE entries SET content = ? WHERE path = ?`, []byte("tampered"), "/blog.html")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = ReadBundle(dbPath)
	assert.ErrorContains(t, err, "digest mismatch")
}

func TestReadBundle_Missing(t *testing.T) {
	_, err := ReadBundle(filepath.Join(t.TempDir(), "nope.db"))
	assert.Error(t, err)
}
