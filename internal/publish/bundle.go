package publish

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/graph"
)

const bundleSchema = `
CREATE TABLE IF NOT EXISTS entries (
	path TEXT PRIMARY KEY,
	mime TEXT NOT NULL,
	size INTEGER NOT NULL,
	digest TEXT NOT NULL,
	content BLOB NOT NULL
) WITHOUT ROWID;
`

// WriteBundle writes the published entries of tree into a fresh SQLite
// database at dbPath, replacing any existing file.
func WriteBundle(dbPath string, tree *graph.Tree) (int, error) {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("remove old bundle: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	// Bulk insert into a file nobody else has open yet.
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		return 0, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		return 0, err
	}
	if _, err := db.Exec(bundleSchema); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO entries (path, mime, size, digest, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	written := 0
	err = tree.Published().Walk(func(p graph.Path, b graph.Blob) error {
		content := b.Content
		if content == nil {
			content = []byte{}
		}
		if _, err := stmt.Exec(string(p), b.MIME, b.Size(), build.ContentDigest(content).String(), content); err != nil {
			return fmt.Errorf("insert %s: %w", p, err)
		}
		written++
		return nil
	})
	_ = stmt.Close()
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bundle: %w", err)
	}
	return written, nil
}

// ReadBundle loads a bundle back into a tree. Every entry is published.
// Entries whose digest does not match their content are rejected.
func ReadBundle(dbPath string) (*graph.Tree, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query("SELECT path, mime, digest, content FROM entries ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tree := graph.NewTree()
	for rows.Next() {
		var p, mime, digest string
		var content []byte
		if err := rows.Scan(&p, &mime, &digest, &content); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if got := build.ContentDigest(content).String(); got != digest {
			return nil, fmt.Errorf("bundle entry %s: digest mismatch", p)
		}
		tree.Insert(graph.Clean(p), graph.Blob{Content: content, MIME: mime, Publish: true})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tree, nil
}
