package cmd

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/quire/internal/publish"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		configPath, buildOut, buildBundle, buildClean = "", "", "", false
		for _, c := range rootCmd.Commands() {
			c.Flags().Visit(func(f *pflag.Flag) { f.Changed = false })
		}
	})
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestLevelFlag(t *testing.T) {
	var l levelFlag
	require.NoError(t, l.Set("debug"))
	assert.Equal(t, slog.LevelDebug, slog.Level(l))
	assert.Equal(t, "DEBUG", l.String())
	assert.Error(t, l.Set("loud"))
}

func TestFormatFlag(t *testing.T) {
	f := formatAuto
	require.NoError(t, f.Set("JSON"))
	assert.Equal(t, formatJSON, f)
	assert.Error(t, f.Set("xml"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	// A buffer is never a terminal, so auto picks JSON.
	newLogger(&buf, slog.LevelInfo, formatAuto).Info("hello", "n", 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])

	buf.Reset()
	l := newLogger(&buf, slog.LevelWarn, formatText)
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"content/blog/a.md": "# Alpha\n",
		"content/blog/b.md": "# Beta\n",
		"site.hcl": `
output = "public"
compress = ["gzip"]

mount "content" {
  source  = "content"
  exclude = [".*"]
}

index "blog" {
  pattern = "/blog/*.md"
  output  = "/blog.html"
}
`,
	})
	writeFiles(t, filepath.Join(dir, "public"), map[string]string{"stale.html": "old"})
	bundle := filepath.Join(dir, "site.db")

	require.NoError(t, run(t, "build", "--config", filepath.Join(dir, "site.hcl"), "--bundle", bundle, "--clean", "--log-level", "warn"))

	for _, name := range []string{"blog.html", "blog.html.gz", "blog/a.html", "blog/b.html.gz"} {
		assert.FileExists(t, filepath.Join(dir, "public", filepath.FromSlash(name)))
	}
	assert.NoFileExists(t, filepath.Join(dir, "public", "stale.html"))
	assert.NoFileExists(t, filepath.Join(dir, "public", "blog", "a.md"))

	tree, err := publish.ReadBundle(bundle)
	require.NoError(t, err)
	assert.True(t, tree.Has("/blog/a.html"))
	assert.False(t, tree.Has("/blog/a.md"))
}

func TestBuildCommand_DefaultLayout(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"content/index.md":  "# Home\n",
		"static/robots.txt": "User-agent: *\n",
	})
	t.Chdir(dir)

	require.NoError(t, run(t, "build", "--out", "out", "--log-level", "error"))
	assert.FileExists(t, filepath.Join(dir, "out", "index.html"))
	assert.FileExists(t, filepath.Join(dir, "out", "robots.txt"))
}

func TestBuildCommand_BadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"site.hcl": `output = "x"`})
	err := run(t, "build", "--config", filepath.Join(dir, "site.hcl"), "--log-level", "error")
	assert.ErrorContains(t, err, "no mount blocks")
}
