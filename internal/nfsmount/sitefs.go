// Package nfsmount exports the published site as a read-only NFSv3
// filesystem. It adapts serve.State to billy.Filesystem for use with
// willscott/go-nfs.
package nfsmount

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/serve"
)

var errReadOnly = errors.New("read-only filesystem")

// SiteFS is a billy.Filesystem over the serving state. Directories are
// not stored; they exist wherever some published path lies beneath them.
type SiteFS struct {
	state     *serve.State
	mountTime time.Time
}

func NewSiteFS(s *serve.State) *SiteFS {
	return &SiteFS{state: s, mountTime: time.Now()}
}

// --- billy.Basic ---

func (fs *SiteFS) Create(string) (billy.File, error) {
	return nil, errReadOnly
}

func (fs *SiteFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *SiteFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, errReadOnly
	}
	p := cleanPath(filename)
	e, ok := fs.state.Get(p)
	if !ok {
		if fs.isDir(p) {
			return nil, &os.PathError{Op: "open", Path: filename, Err: errors.New("is a directory")}
		}
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrNotExist}
	}
	return &bytesFile{name: filename, data: e.Content}, nil
}

func (fs *SiteFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *SiteFS) Rename(string, string) error { return errReadOnly }

func (fs *SiteFS) Remove(string) error { return errReadOnly }

func (fs *SiteFS) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// --- billy.TempFile ---

func (fs *SiteFS) TempFile(string, string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *SiteFS) ReadDir(path string) ([]os.FileInfo, error) {
	dir := cleanPath(path)
	if _, ok := fs.state.Get(dir); ok {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: errors.New("not a directory")}
	}

	files := make(map[string]graph.Path)
	dirs := make(map[string]bool)
	for _, p := range fs.state.Paths() {
		rel, ok := p.Rel(dir)
		if !ok || rel == "" {
			continue
		}
		if first, _, nested := strings.Cut(rel, "/"); nested {
			dirs[first] = true
		} else {
			files[first] = p
		}
	}
	if len(files) == 0 && len(dirs) == 0 && dir != graph.Root {
		return nil, &os.PathError{Op: "readdir", Path: path, Err: os.ErrNotExist}
	}

	infos := make([]os.FileInfo, 0, len(files)+len(dirs))
	for name := range dirs {
		infos = append(infos, fs.dirInfo(name))
	}
	for name, p := range files {
		if e, ok := fs.state.Get(p); ok {
			infos = append(infos, fileInfo(name, e))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (fs *SiteFS) MkdirAll(string, os.FileMode) error { return errReadOnly }

// --- billy.Symlink ---

func (fs *SiteFS) Lstat(filename string) (os.FileInfo, error) {
	p := cleanPath(filename)
	if p == graph.Root {
		return fs.dirInfo("/"), nil
	}
	if e, ok := fs.state.Get(p); ok {
		return fileInfo(p.Base(), e), nil
	}
	if fs.isDir(p) {
		return fs.dirInfo(p.Base()), nil
	}
	return nil, &os.PathError{Op: "lstat", Path: filename, Err: os.ErrNotExist}
}

func (fs *SiteFS) Symlink(string, string) error { return billy.ErrNotSupported }

func (fs *SiteFS) Readlink(string) (string, error) { return "", billy.ErrNotSupported }

// --- billy.Chroot ---

func (fs *SiteFS) Chroot(path string) (billy.Filesystem, error) {
	return chroot.New(fs, path), nil
}

func (fs *SiteFS) Root() string { return "/" }

// --- billy.Capable ---

func (fs *SiteFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

// --- internals ---

func (fs *SiteFS) isDir(p graph.Path) bool {
	for _, q := range fs.state.Paths() {
		if q != p && q.Under(p) {
			return true
		}
	}
	return false
}

func (fs *SiteFS) dirInfo(name string) os.FileInfo {
	return &staticFileInfo{name: name, mode: os.ModeDir | 0o555, modTime: fs.mountTime}
}

func fileInfo(name string, e serve.Entry) os.FileInfo {
	return &staticFileInfo{name: name, size: int64(len(e.Content)), mode: 0o444, modTime: e.ModTime}
}

// cleanPath normalizes a billy path to a virtual path.
func cleanPath(path string) graph.Path {
	return graph.Clean(filepath.ToSlash(path))
}

// staticFileInfo implements os.FileInfo with static values.
type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() any           { return nil }

var (
	_ billy.Filesystem = (*SiteFS)(nil)
	_ billy.Capable    = (*SiteFS)(nil)
	_ billy.File       = (*bytesFile)(nil)
)
