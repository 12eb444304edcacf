package rule

import (
	"path"
	"strings"

	"github.com/agentic-research/quire/internal/graph"
)

// Selector is a predicate over virtual paths.
type Selector func(graph.Path) bool

// Glob matches the full virtual path against any path.Match pattern.
// "/blog/*.md" matches direct children of /blog only.
func Glob(patterns ...string) Selector {
	return func(p graph.Path) bool {
		for _, pat := range patterns {
			if ok, _ := path.Match(pat, string(p)); ok {
				return true
			}
		}
		return false
	}
}

// Ext matches paths ending in any of the extensions (".md"), case-insensitively.
func Ext(exts ...string) Selector {
	return func(p graph.Path) bool {
		e := strings.ToLower(p.Ext())
		for _, want := range exts {
			if e == strings.ToLower(want) {
				return true
			}
		}
		return false
	}
}

// Under matches prefix and everything beneath it.
func Under(prefix graph.Path) Selector {
	return func(p graph.Path) bool { return p.Under(prefix) }
}

// Exactly matches the listed paths.
func Exactly(paths ...graph.Path) Selector {
	set := make(map[graph.Path]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(p graph.Path) bool { return set[p] }
}

// And matches when every selector does.
func And(sels ...Selector) Selector {
	return func(p graph.Path) bool {
		for _, s := range sels {
			if !s(p) {
				return false
			}
		}
		return true
	}
}

// Not inverts s.
func Not(s Selector) Selector {
	return func(p graph.Path) bool { return !s(p) }
}

// None matches nothing. Aggregates without inputs use it.
func None(graph.Path) bool { return false }
