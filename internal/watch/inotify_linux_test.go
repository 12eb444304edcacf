//go:build linux

package watch

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/pipeline"
)

func waitFor(t *testing.T, ch <-chan pipeline.Event, p graph.Path, change pipeline.Change) pipeline.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "channel closed waiting for %s %s", change, p)
			if ev.Path == p && ev.Change == change {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s %s", change, p)
		}
	}
}

func startWatcher(t *testing.T, m ingest.DirMap) (<-chan pipeline.Event, context.CancelFunc) {
	t.Helper()
	return startLoggedWatcher(t, m, nil)
}

func startLoggedWatcher(t *testing.T, m ingest.DirMap, logger *slog.Logger) (<-chan pipeline.Event, context.CancelFunc) {
	t.Helper()
	w, err := New(m, logger)
	require.NoError(t, err)
	ch := make(chan pipeline.Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, ch)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ch, cancel
}

func TestWatcher_InitialBurstAndChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.tmp"), []byte("x"), 0o644))

	ch, _ := startWatcher(t, ingest.DirMap{
		Source: dir,
		Prefix: "/blog",
		Filter: ingest.Exclude("*.tmp"),
	})
	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	ev := waitFor(t, ch, "/blog/a.md", pipeline.ChangeModified)
	assert.Equal(t, pipeline.SourceWatcher, ev.Source)
	assert.Equal(t, pipeline.Notice, ev.Kind)
	assert.Equal(t, filepath.Join(canonical, "a.md"), ev.RealPath)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o644))
	waitFor(t, ch, "/blog/b.md", pipeline.ChangeModified)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	waitFor(t, ch, "/blog/a.md", pipeline.ChangeRemoved)

	// Renaming in counts as a modification; renaming out as a removal.
	require.NoError(t, os.Rename(filepath.Join(dir, "b.md"), filepath.Join(dir, "c.md")))
	waitFor(t, ch, "/blog/b.md", pipeline.ChangeRemoved)
	waitFor(t, ch, "/blog/c.md", pipeline.ChangeModified)
}

func TestWatcher_NewAndRemovedDirectories(t *testing.T) {
	dir := t.TempDir()
	ch, _ := startWatcher(t, ingest.DirMap{Source: dir})

	sub := filepath.Join(dir, "posts")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a chance to add the new directory before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "p.md"), []byte("p"), 0o644))
	waitFor(t, ch, "/posts/p.md", pipeline.ChangeModified)

	require.NoError(t, os.RemoveAll(sub))
	waitFor(t, ch, "/posts/p.md", pipeline.ChangeRemoved)
}

func TestWatcher_SetupErrors(t *testing.T) {
	_, err := New(ingest.DirMap{Source: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)
}

func TestParseEvents(t *testing.T) {
	buf := make([]byte, 16+8)
	buf[0] = 3             // wd
	buf[4] = 0x8           // IN_CLOSE_WRITE
	buf[12] = 8            // name length
	copy(buf[16:], "a.md") // null padded
	evs := parseEvents(buf)
	require.Len(t, evs, 1)
	assert.Equal(t, int32(3), evs[0].wd)
	assert.Equal(t, "a.md", evs[0].name)

	assert.Empty(t, parseEvents(buf[:10]))
}

func TestAll_ClosesChannel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	ch := make(chan pipeline.Event, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- All(ctx, []ingest.DirMap{{Source: dir}}, ch, nil) }()
	waitFor(t, ch, "/a.txt", pipeline.ChangeModified)
	cancel()
	require.NoError(t, <-done)
	_, ok := <-ch
	assert.False(t, ok)
}

// syncBuffer is a log sink safe to read while the watcher writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatcher_DropsInvalidAndFilteredPathsAfterStartup(t *testing.T) {
	dir := t.TempDir()
	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ch, _ := startLoggedWatcher(t, ingest.DirMap{Source: dir, Filter: ingest.Exclude("*.tmp")}, logger)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad\xff.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.md"), []byte("ok"), 0o644))

	var seen []graph.Path
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "watch stopped")
			seen = append(seen, ev.Path)
			done = ev.Path == "/ok.md"
		case <-timeout:
			t.Fatalf("timed out waiting for /ok.md, saw %v", seen)
		}
	}
	for _, p := range seen {
		assert.Equal(t, graph.Path("/ok.md"), p)
	}
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), `name_raw="\"bad\\xff.md\""`)

	// The watch keeps running.
	require.NoError(t, os.Remove(filepath.Join(dir, "ok.md")))
	waitFor(t, ch, "/ok.md", pipeline.ChangeRemoved)
}
