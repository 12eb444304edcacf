// Package publish writes the published subset of a content tree to its
// destinations: a directory on disk or a single-file SQLite bundle.
package publish

import (
	"fmt"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/agentic-research/quire/internal/graph"
)

// WriteDir writes every published entry of tree to fs at its virtual path,
// creating parent directories as needed. It returns the number of files
// written.
func WriteDir(fs billy.Filesystem, tree *graph.Tree) (int, error) {
	written := 0
	err := tree.Published().Walk(func(p graph.Path, b graph.Blob) error {
		if p == graph.Root {
			return fmt.Errorf("cannot write content to the output root")
		}
		name := string(p)
		if err := fs.MkdirAll(path.Dir(name), 0o755); err != nil {
			return fmt.Errorf("mkdir for %s: %w", p, err)
		}
		if err := util.WriteFile(fs, name, b.Content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
		written++
		return nil
	})
	return written, err
}

// Clean removes everything inside the root of fs, leaving the root itself.
func Clean(fs billy.Filesystem) error {
	entries, err := fs.ReadDir("/")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, e := range entries {
		if err := util.RemoveAll(fs, "/"+e.Name()); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
