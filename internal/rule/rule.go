// Package rule defines the four transformation shapes the build executor and
// the event pipeline know how to run. A Rule is a tagged union: Kind says
// which of the function fields are set.
package rule

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agentic-research/quire/internal/graph"
)

var (
	// ErrMissingDependency is returned when a declared dependency is absent.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrOutputMismatch is returned when a spread rule produces a different
	// set of paths than it declared.
	ErrOutputMismatch = errors.New("spread outputs do not match declaration")
)

type Kind int

const (
	KindMap Kind = iota
	KindMapWithDeps
	KindSpread
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindMapWithDeps:
		return "map-with-deps"
	case KindSpread:
		return "spread"
	case KindAggregate:
		return "aggregate"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// View is a resolved set of blobs handed to a build function.
type View map[graph.Path]graph.Blob

// Paths returns the view's paths in lexical order.
func (v View) Paths() []graph.Path {
	paths := make([]graph.Path, 0, len(v))
	for p := range v {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

type (
	MapFunc       func(p graph.Path, b graph.Blob) (graph.Path, graph.Blob, error)
	DepsFunc      func(p graph.Path, b graph.Blob) []graph.Path
	WithDepsFunc  func(p graph.Path, b graph.Blob, deps View) (graph.Path, graph.Blob, error)
	OutputsFunc   func(p graph.Path, b graph.Blob) []graph.Path
	SpreadFunc    func(p graph.Path, b graph.Blob) (map[graph.Path]graph.Blob, error)
	DemandsFunc   func(t *graph.Tree) []graph.Path
	AggregateFunc func(inputs View) (graph.Blob, error)
)

// Rule is one transformation step.
type Rule struct {
	Name string
	Kind Kind
	// Match selects input paths. For aggregates it also decides which
	// changes re-trigger the rule in the reactive pipeline.
	Match Selector

	Map      MapFunc      // KindMap
	Deps     DepsFunc     // KindMapWithDeps
	WithDeps WithDepsFunc // KindMapWithDeps
	Outputs  OutputsFunc  // KindSpread
	Spread   SpreadFunc   // KindSpread

	Output    graph.Path    // KindAggregate
	Demands   DemandsFunc   // KindAggregate, nil means every matching path
	Aggregate AggregateFunc // KindAggregate
}

// NewMap builds a one-to-one rule.
func NewMap(name string, match Selector, fn MapFunc) Rule {
	return Rule{Name: name, Kind: KindMap, Match: match, Map: fn}
}

// NewMapWithDeps builds a one-to-one rule whose build also sees the blobs
// named by deps.
func NewMapWithDeps(name string, match Selector, deps DepsFunc, fn WithDepsFunc) Rule {
	return Rule{Name: name, Kind: KindMapWithDeps, Match: match, Deps: deps, WithDeps: fn}
}

// NewSpread builds a one-to-many rule. outputs must predict exactly the
// paths fn produces.
func NewSpread(name string, match Selector, outputs OutputsFunc, fn SpreadFunc) Rule {
	return Rule{Name: name, Kind: KindSpread, Match: match, Outputs: outputs, Spread: fn}
}

// NewAggregate builds a many-to-one rule writing to output. Every path
// matching match is an input.
func NewAggregate(name string, output graph.Path, match Selector, fn AggregateFunc) Rule {
	return Rule{Name: name, Kind: KindAggregate, Output: output, Match: match, Aggregate: fn}
}

// Matches reports whether p is an input of r.
func (r Rule) Matches(p graph.Path) bool {
	return r.Match != nil && r.Match(p)
}

// Inputs returns the paths an aggregate reads from t, in lexical order.
func (r Rule) Inputs(t *graph.Tree) []graph.Path {
	if r.Demands != nil {
		paths := r.Demands(t)
		sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
		return paths
	}
	var paths []graph.Path
	for _, p := range t.Paths() {
		if r.Matches(p) {
			paths = append(paths, p)
		}
	}
	return paths
}

// Validate checks that the function fields required by Kind are set.
func (r Rule) Validate() error {
	if r.Name == "" {
		return errors.New("rule has no name")
	}
	var missing string
	switch r.Kind {
	case KindMap:
		if r.Map == nil {
			missing = "Map"
		}
	case KindMapWithDeps:
		if r.Deps == nil {
			missing = "Deps"
		} else if r.WithDeps == nil {
			missing = "WithDeps"
		}
	case KindSpread:
		if r.Outputs == nil {
			missing = "Outputs"
		} else if r.Spread == nil {
			missing = "Spread"
		}
	case KindAggregate:
		if r.Aggregate == nil {
			missing = "Aggregate"
		} else if r.Output == "" {
			missing = "Output"
		}
	default:
		return fmt.Errorf("rule %q: unknown kind %d", r.Name, int(r.Kind))
	}
	if missing != "" {
		return fmt.Errorf("rule %q (%s): %s is nil", r.Name, r.Kind, missing)
	}
	return nil
}

// Resolve looks up every dependency of a MapWithDeps input in lookup.
// It fails with ErrMissingDependency naming the first absent path.
func Resolve(deps []graph.Path, lookup func(graph.Path) (graph.Blob, bool)) (View, error) {
	view := make(View, len(deps))
	for _, d := range deps {
		b, ok := lookup(d)
		if !ok {
			return nil, fmt.Errorf("%s: %w", d, ErrMissingDependency)
		}
		view[d] = b
	}
	return view, nil
}

// CheckOutputs compares a spread rule's declared outputs with what it built.
func CheckOutputs(declared []graph.Path, produced map[graph.Path]graph.Blob) error {
	want := make(map[graph.Path]bool, len(declared))
	for _, p := range declared {
		want[p] = true
	}
	for p := range produced {
		if !want[p] {
			return fmt.Errorf("undeclared output %s: %w", p, ErrOutputMismatch)
		}
	}
	for p := range want {
		if _, ok := produced[p]; !ok {
			return fmt.Errorf("declared output %s not produced: %w", p, ErrOutputMismatch)
		}
	}
	return nil
}
