package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/quire/internal/graph"
)

// Entry is one directory or regular file found by Walk.
type Entry struct {
	Path graph.Path // virtual path
	Real string     // path on disk
	Dir  bool

	fs   billy.Filesystem
	name string
}

// Read returns the file's content.
func (e Entry) Read() ([]byte, error) {
	if e.Dir {
		return nil, fmt.Errorf("%s: is a directory", e.Real)
	}
	return util.ReadFile(e.fs, e.name)
}

// Walk visits every directory and regular file under m.Source in lexical
// order, root first. Symlinks are judged by their target: links to regular
// files appear as files at the link's path, links to directories are
// descended into once. Anything else fails with ErrIrregularFile, and real
// paths that are not UTF-8 fail with ErrInvalidPath.
func Walk(m DirMap, fn func(Entry) error) error {
	source, err := filepath.Abs(m.Source)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", m.Source, err)
	}
	m.Source = source
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", source)
	}
	visited := make(map[string]bool)
	return walkDir(m, visited, fn)
}

func walkDir(m DirMap, visited map[string]bool, fn func(Entry) error) error {
	canonical, err := filepath.EvalSymlinks(m.Source)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", m.Source, err)
	}
	if visited[canonical] {
		return nil
	}
	visited[canonical] = true
	m.Source = canonical

	fs := osfs.New(m.Source)
	return util.Walk(fs, "/", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", filepath.Join(m.Source, name), err)
		}
		rel := strings.TrimPrefix(filepath.ToSlash(name), "/")
		vpath, err := m.Virtual(rel)
		if err != nil {
			return err
		}
		realPath := filepath.Join(m.Source, filepath.FromSlash(rel))
		entry := Entry{Path: vpath, Real: realPath, fs: fs, name: name}

		mode := info.Mode()
		if mode&os.ModeSymlink != 0 {
			target, err := fs.Stat(name)
			if err != nil {
				return fmt.Errorf("resolve symlink %s: %w", realPath, err)
			}
			if target.IsDir() {
				if m.Pruned(vpath) {
					return nil
				}
				sub := m
				sub.Source = realPath
				sub.Prefix = vpath
				return walkDir(sub, visited, fn)
			}
			mode = target.Mode()
		}

		switch {
		case mode.IsDir():
			if rel != "" && m.Pruned(vpath) {
				return filepath.SkipDir
			}
			entry.Dir = true
			return fn(entry)
		case mode.IsRegular():
			return fn(entry)
		default:
			return fmt.Errorf("%s (%s): %w", realPath, mode.Type(), ErrIrregularFile)
		}
	})
}

// Load reads every DirMap into one tree. Later maps win on path conflicts.
func Load(maps []DirMap) (*graph.Tree, error) {
	tree := graph.NewTree()
	for _, m := range maps {
		if err := LoadInto(tree, m); err != nil {
			return nil, fmt.Errorf("load %s: %w", m.Source, err)
		}
	}
	return tree, nil
}

// LoadInto inserts every accepted file under m into tree with MIME guessed
// from the path and Publish taken from the map.
func LoadInto(tree *graph.Tree, m DirMap) error {
	return Walk(m, func(e Entry) error {
		if e.Dir {
			return nil
		}
		content, err := e.Read()
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Real, err)
		}
		if !m.Accept(e.Path, content) {
			return nil
		}
		tree.Insert(e.Path, graph.Blob{
			Content: content,
			MIME:    DetectMIME(e.Path, content),
			Publish: m.Publish,
		})
		return nil
	})
}

// Lookup returns what Load would insert at p: the blob from the last map
// whose file exists, sits under no pruned directory and passes the filter.
// ok is false when no map provides p. Irregular files fail as in Load.
func Lookup(maps []DirMap, p graph.Path) (b graph.Blob, realPath string, ok bool, err error) {
	for _, m := range maps {
		r, covered := m.Real(p)
		if !covered || r == m.Source || m.prunedAbove(p) {
			continue
		}
		content, err := ReadFile(r)
		if IsNotExist(err) {
			continue
		}
		if err != nil {
			return graph.Blob{}, "", false, err
		}
		if !m.Accept(p, content) {
			continue
		}
		b = graph.Blob{Content: content, MIME: DetectMIME(p, content), Publish: m.Publish}
		realPath, ok = r, true
	}
	return b, realPath, ok, nil
}

// ReadFile reads a single real file, failing with ErrIrregularFile if it is
// not a regular file after resolving symlinks.
func ReadFile(realPath string) ([]byte, error) {
	info, err := osfs.Default.Stat(realPath)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s (%s): %w", realPath, info.Mode().Type(), ErrIrregularFile)
	}
	return util.ReadFile(osfs.Default, realPath)
}

// IsNotExist reports whether err means the file is gone.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
