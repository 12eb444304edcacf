package ingest

import (
	"bytes"
	"path"

	"github.com/agentic-research/quire/internal/graph"
)

// Include accepts paths whose base name or full virtual path matches any
// pattern. No patterns accepts everything.
func Include(patterns ...string) Filter {
	if len(patterns) == 0 {
		return nil
	}
	return func(p graph.Path, _ []byte) bool {
		return matchAny(patterns, p, false)
	}
}

// Exclude rejects paths where the full path or any single segment matches
// a pattern, so ".*" hides everything under a dot directory.
func Exclude(patterns ...string) Filter {
	if len(patterns) == 0 {
		return nil
	}
	return func(p graph.Path, _ []byte) bool {
		return !matchAny(patterns, p, true)
	}
}

// PruneMatching returns a Prune func skipping directories whose name
// matches any pattern.
func PruneMatching(patterns ...string) func(graph.Path) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(dir graph.Path) bool {
		for _, pat := range patterns {
			if ok, _ := path.Match(pat, dir.Base()); ok {
				return true
			}
		}
		return false
	}
}

// SkipBinary rejects content that looks binary. Path-only checks pass.
func SkipBinary(_ graph.Path, content []byte) bool {
	return content == nil || !isBinary(content)
}

// All accepts only if every non-nil filter accepts.
func All(filters ...Filter) Filter {
	var active []Filter
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	switch len(active) {
	case 0:
		return nil
	case 1:
		return active[0]
	}
	return func(p graph.Path, content []byte) bool {
		for _, f := range active {
			if !f(p, content) {
				return false
			}
		}
		return true
	}
}

func matchAny(patterns []string, p graph.Path, segments bool) bool {
	full := string(p)
	rel := full[1:]
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, full); ok {
			return true
		}
		if ok, _ := path.Match(pat, rel); ok {
			return true
		}
		if ok, _ := path.Match(pat, p.Base()); ok {
			return true
		}
		if segments {
			for _, seg := range p.Segments() {
				if ok, _ := path.Match(pat, seg); ok {
					return true
				}
			}
		}
	}
	return false
}

// isBinary checks the first 8KB for a NUL byte, the same heuristic git uses.
func isBinary(content []byte) bool {
	if len(content) > 8192 {
		content = content[:8192]
	}
	return bytes.IndexByte(content, 0) >= 0
}
