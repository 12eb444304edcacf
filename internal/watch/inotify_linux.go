//go:build linux

package watch

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sys/unix"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/pipeline"
)

const (
	watchMask = unix.IN_CLOSE_WRITE | unix.IN_CREATE | unix.IN_DELETE |
		unix.IN_MOVED_FROM | unix.IN_MOVED_TO
	pollTimeoutMillis = 100
)

type watchedDir struct {
	real string
	path graph.Path
}

// Watcher follows one DirMap with inotify. Symlinked directories are
// watched at their target.
type Watcher struct {
	m      ingest.DirMap
	logger *slog.Logger
	fd     int

	dirs  map[int32]watchedDir
	wds   map[string]int32
	files map[string]graph.Path // real path -> virtual path of every reported file

	pending []pipeline.Event
}

// New installs watches on every directory under m and queues the initial
// burst of notices. Any load error in the initial scan is fatal.
func New(m ingest.DirMap, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source, err := filepath.Abs(m.Source)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", m.Source, err)
	}
	if source, err = filepath.EvalSymlinks(source); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", m.Source, err)
	}
	m.Source = source

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify init: %w", err)
	}
	w := &Watcher{
		m:      m,
		logger: logger.With("source", source),
		fd:     fd,
		dirs:   make(map[int32]watchedDir),
		wds:    make(map[string]int32),
		files:  make(map[string]graph.Path),
	}
	// Watches go in before the burst is built so nothing written during
	// the scan is missed.
	initial, err := w.scan(m)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	w.pending = initial
	return w, nil
}

// Close releases the inotify descriptor.
func (w *Watcher) Close() error {
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}

// scan watches every directory under sub and returns a Modified notice
// for each file passing the path filter.
func (w *Watcher) scan(sub ingest.DirMap) ([]pipeline.Event, error) {
	var out []pipeline.Event
	err := ingest.Walk(sub, func(e ingest.Entry) error {
		if e.Dir {
			return w.addWatch(e.Real, e.Path)
		}
		if !w.m.Accept(e.Path, nil) {
			return nil
		}
		w.files[e.Real] = e.Path
		out = append(out, pipeline.Modified(e.Path, e.Real))
		return nil
	})
	return out, err
}

func (w *Watcher) addWatch(realDir string, p graph.Path) error {
	wd, err := unix.InotifyAddWatch(w.fd, realDir, watchMask|unix.IN_ONLYDIR)
	if err != nil {
		return fmt.Errorf("watch %s: %w", realDir, err)
	}
	w.dirs[int32(wd)] = watchedDir{real: realDir, path: p}
	w.wds[realDir] = int32(wd)
	return nil
}

// Run sends the initial burst, then follows changes until ctx is done.
// Sends block when out is full. Run closes the watcher on return.
func (w *Watcher) Run(ctx context.Context, out chan<- pipeline.Event) error {
	defer func() { _ = w.Close() }()

	if err := w.send(ctx, out, w.pending); err != nil {
		return err
	}
	w.logger.Info("watching", "files", len(w.pending), "dirs", len(w.dirs))
	w.pending = nil

	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll inotify: %w", err)
		}
		if n == 0 {
			continue
		}
		read, err := unix.Read(w.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read inotify: %w", err)
		}
		if err := w.send(ctx, out, w.handleBuffer(buf[:read])); err != nil {
			return err
		}
	}
}

func (w *Watcher) send(ctx context.Context, out chan<- pipeline.Event, events []pipeline.Event) error {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// rawEvent is one decoded inotify_event.
type rawEvent struct {
	wd   int32
	mask uint32
	name string
}

// parseEvents decodes a read buffer. Layout from inotify(7):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, null-padded
//	};
func parseEvents(buf []byte) []rawEvent {
	var out []rawEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		wd := int32(binary.NativeEndian.Uint32(buf[offset : offset+4]))
		mask := binary.NativeEndian.Uint32(buf[offset+4 : offset+8])
		nameLen := int(binary.NativeEndian.Uint32(buf[offset+12 : offset+16]))
		size := unix.SizeofInotifyEvent + nameLen
		if offset+size > len(buf) {
			break
		}
		name := buf[offset+unix.SizeofInotifyEvent : offset+size]
		if i := strings.IndexByte(string(name), 0); i >= 0 {
			name = name[:i]
		}
		out = append(out, rawEvent{wd: wd, mask: mask, name: string(name)})
		offset += size
	}
	return out
}

func (w *Watcher) handleBuffer(buf []byte) []pipeline.Event {
	var out []pipeline.Event
	for _, ev := range parseEvents(buf) {
		out = append(out, w.handle(ev)...)
	}
	return out
}

func (w *Watcher) handle(ev rawEvent) []pipeline.Event {
	if ev.mask&unix.IN_Q_OVERFLOW != 0 {
		w.logger.Warn("inotify queue overflow, rescanning")
		return w.resync()
	}
	d, ok := w.dirs[ev.wd]
	if ev.mask&unix.IN_IGNORED != 0 {
		if ok {
			delete(w.dirs, ev.wd)
			if w.wds[d.real] == ev.wd {
				delete(w.wds, d.real)
			}
		}
		return nil
	}
	if !ok || ev.name == "" {
		return nil
	}
	if !utf8.ValidString(ev.name) {
		w.logger.Warn("dropping change to non-UTF-8 path", "dir", d.real, "name_raw", strconv.QuoteToASCII(ev.name))
		return nil
	}
	realPath := filepath.Join(d.real, ev.name)
	p := d.path.Join(ev.name)

	switch {
	case ev.mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		if ev.mask&unix.IN_ISDIR != 0 {
			return w.dropDir(realPath)
		}
		if _, known := w.files[realPath]; !known {
			return nil
		}
		delete(w.files, realPath)
		return []pipeline.Event{pipeline.Deleted(p, realPath)}

	case ev.mask&unix.IN_ISDIR != 0:
		if ev.mask&(unix.IN_CREATE|unix.IN_MOVED_TO) == 0 {
			return nil
		}
		return w.addDir(realPath, p)

	case ev.mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0:
		return w.touch(realPath, p)

	case ev.mask&unix.IN_CREATE != 0:
		// Regular files report again on close. Links never do.
		info, err := os.Lstat(realPath)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		if target, err := os.Stat(realPath); err == nil && target.IsDir() {
			return w.addDir(realPath, p)
		}
		return w.touch(realPath, p)
	}
	return nil
}

func (w *Watcher) touch(realPath string, p graph.Path) []pipeline.Event {
	if !w.m.Accept(p, nil) {
		return nil
	}
	w.files[realPath] = p
	return []pipeline.Event{pipeline.Modified(p, realPath)}
}

// addDir starts watching a directory that appeared after startup and
// reports the files already inside it.
func (w *Watcher) addDir(realDir string, p graph.Path) []pipeline.Event {
	if w.m.Pruned(p) {
		return nil
	}
	sub := w.m
	sub.Source = realDir
	sub.Prefix = p
	events, err := w.scan(sub)
	if err != nil {
		w.logger.Warn("scan new directory", "dir", realDir, "error", err)
	}
	return events
}

// dropDir reports every known file under a removed directory.
func (w *Watcher) dropDir(realDir string) []pipeline.Event {
	prefix := realDir + string(filepath.Separator)
	var gone []string
	for r := range w.files {
		if strings.HasPrefix(r, prefix) {
			gone = append(gone, r)
		}
	}
	sort.Strings(gone)
	out := make([]pipeline.Event, 0, len(gone))
	for _, r := range gone {
		out = append(out, pipeline.Deleted(w.files[r], r))
		delete(w.files, r)
	}
	// A directory moved elsewhere keeps its watch; stop following it.
	for r, wd := range w.wds {
		if r == realDir || strings.HasPrefix(r, prefix) {
			_, _ = unix.InotifyRmWatch(w.fd, uint32(wd))
			delete(w.wds, r)
			delete(w.dirs, wd)
		}
	}
	return out
}

// resync rescans the whole map after lost events: every file found is
// reported modified and every file no longer present is reported removed.
func (w *Watcher) resync() []pipeline.Event {
	before := w.files
	w.files = make(map[string]graph.Path)
	events, err := w.scan(w.m)
	if err != nil {
		w.logger.Warn("rescan", "error", err)
	}
	var gone []string
	for r := range before {
		if _, ok := w.files[r]; !ok {
			gone = append(gone, r)
		}
	}
	sort.Strings(gone)
	for _, r := range gone {
		events = append(events, pipeline.Deleted(before[r], r))
	}
	return events
}
