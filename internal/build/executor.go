// Package build applies an ordered rule list to a content tree once, with an
// in-memory memo table so unchanged inputs skip their build functions.
package build

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/rule"
)

// RuleError attaches the failing rule and input path to a build failure.
type RuleError struct {
	Rule string
	Kind rule.Kind
	Path graph.Path
	Err  error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %q (%s) on %s: %v", e.Rule, e.Kind, e.Path, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

func ruleError(r rule.Rule, p graph.Path, err error) error {
	return &RuleError{Rule: r.Name, Kind: r.Kind, Path: p, Err: err}
}

// Lookup resolves dependency paths. (*graph.Tree).Lookup satisfies it.
type Lookup func(graph.Path) (graph.Blob, bool)

// Apply runs a Map, MapWithDeps or Spread rule on one input. Dependencies
// of MapWithDeps rules are resolved through lookup; a missing one fails
// with rule.ErrMissingDependency. Errors are *RuleError.
func Apply(cache *Cache, r rule.Rule, p graph.Path, b graph.Blob, lookup Lookup) (Result, error) {
	inputs := rule.View{p: b}

	switch r.Kind {
	case rule.KindMap:
		fp := Fingerprint(r, p, inputs)
		if res, ok := cache.Get(fp); ok {
			return res, nil
		}
		out, ob, err := r.Map(p, b)
		if err != nil {
			return nil, ruleError(r, p, err)
		}
		res := Result{out: ob}
		cache.Add(fp, res)
		return res, nil

	case rule.KindMapWithDeps:
		deps, err := rule.Resolve(r.Deps(p, b), lookup)
		if err != nil {
			return nil, ruleError(r, p, err)
		}
		for dp, db := range deps {
			inputs[dp] = db
		}
		fp := Fingerprint(r, p, inputs)
		if res, ok := cache.Get(fp); ok {
			return res, nil
		}
		out, ob, err := r.WithDeps(p, b, deps)
		if err != nil {
			return nil, ruleError(r, p, err)
		}
		res := Result{out: ob}
		cache.Add(fp, res)
		return res, nil

	case rule.KindSpread:
		fp := Fingerprint(r, p, inputs)
		if res, ok := cache.Get(fp); ok {
			return res, nil
		}
		declared := r.Outputs(p, b)
		produced, err := r.Spread(p, b)
		if err != nil {
			return nil, ruleError(r, p, err)
		}
		if err := rule.CheckOutputs(declared, produced); err != nil {
			return nil, ruleError(r, p, err)
		}
		res := Result(produced)
		cache.Add(fp, res)
		return res, nil
	}
	return nil, ruleError(r, p, fmt.Errorf("%s rules do not take a single input", r.Kind))
}

// ApplyAggregate runs an aggregate over its resolved inputs.
func ApplyAggregate(cache *Cache, r rule.Rule, inputs rule.View) (graph.Blob, error) {
	if r.Kind != rule.KindAggregate {
		return graph.Blob{}, ruleError(r, r.Output, fmt.Errorf("%s rule is not an aggregate", r.Kind))
	}
	fp := Fingerprint(r, r.Output, inputs)
	if res, ok := cache.Get(fp); ok {
		return res[r.Output], nil
	}
	b, err := r.Aggregate(inputs)
	if err != nil {
		return graph.Blob{}, ruleError(r, r.Output, err)
	}
	cache.Add(fp, Result{r.Output: b})
	return b, nil
}

// Executor runs rule lists. The zero value works without memoization.
type Executor struct {
	Cache  *Cache
	Logger *slog.Logger
}

// Build is shorthand for an Executor with the given cache.
func Build(cache *Cache, initial *graph.Tree, rules []rule.Rule) (*graph.Tree, error) {
	return (&Executor{Cache: cache}).Build(initial, rules)
}

// Build applies rules in order to a copy of initial and returns the fully
// derived tree. Each rule sees the tree as it stood before the rule began;
// its outputs are merged before the next rule runs. The first error aborts
// the build. Callers write out Published() of the result.
func (e *Executor) Build(initial *graph.Tree, rules []rule.Rule) (*graph.Tree, error) {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	tree := initial.Clone()

	for _, r := range rules {
		ruleStart := time.Now()
		out, err := e.applyRule(tree, r)
		if err != nil {
			return nil, err
		}
		tree.Merge(out)
		logger.Debug("rule applied",
			"rule", r.Name,
			"kind", r.Kind.String(),
			"outputs", out.Len(),
			"elapsed", time.Since(ruleStart))
	}

	stats := e.Cache.Stats()
	logger.Info("build complete",
		"rules", len(rules),
		"entries", tree.Len(),
		"published", tree.Published().Len(),
		"cache_hits", stats.Hits,
		"cache_misses", stats.Misses,
		"elapsed", time.Since(start))
	return tree, nil
}

func (e *Executor) applyRule(tree *graph.Tree, r rule.Rule) (*graph.Tree, error) {
	out := graph.NewTree()

	if r.Kind == rule.KindAggregate {
		inputs, err := rule.Resolve(r.Inputs(tree), tree.Lookup)
		if err != nil {
			return nil, ruleError(r, r.Output, err)
		}
		b, err := ApplyAggregate(e.Cache, r, inputs)
		if err != nil {
			return nil, err
		}
		out.Insert(r.Output, b)
		return out, nil
	}

	for _, p := range tree.Paths() {
		if !r.Matches(p) {
			continue
		}
		b, _ := tree.Lookup(p)
		res, err := Apply(e.Cache, r, p, b, tree.Lookup)
		if err != nil {
			return nil, err
		}
		for op, ob := range res {
			out.Insert(op, ob)
		}
	}
	return out, nil
}
