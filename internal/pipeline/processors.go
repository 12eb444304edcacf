package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/rule"
)

// FileLoader turns watcher notices into content. Whatever mount a notice
// came from, the path is resolved across every mount with the same
// precedence as ingest.Load (later mounts win), so a removal in one mount
// re-exposes the copy another mount still provides.
type FileLoader struct {
	mounts []ingest.DirMap
}

// NewFileLoader canonicalizes each mount's source so real paths match the
// ones the watcher reports.
func NewFileLoader(mounts []ingest.DirMap) (*FileLoader, error) {
	out := make([]ingest.DirMap, len(mounts))
	for i, m := range mounts {
		abs, err := filepath.Abs(m.Source)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", m.Source, err)
		}
		if canonical, err := filepath.EvalSymlinks(abs); err == nil {
			abs = canonical
		}
		m.Source = abs
		out[i] = m
	}
	return &FileLoader{mounts: out}, nil
}

func (l *FileLoader) Process(ev Event, _ *Index) ([]Event, error) {
	if ev.Source != SourceWatcher || ev.Kind != Notice {
		return nil, nil
	}
	if ev.Change != ChangeModified && ev.Change != ChangeRemoved {
		return nil, nil
	}

	b, realPath, ok, err := ingest.Lookup(l.mounts, ev.Path)
	switch {
	case errors.Is(err, ingest.ErrIrregularFile):
		return []Event{Notify(SourceLoader, "", ev.Path, "skipped: "+err.Error())}, nil
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", ev.Path, err)
	case !ok:
		return []Event{{Source: SourceLoader, Path: ev.Path, RealPath: ev.RealPath, Kind: Removed}}, nil
	}
	out := Insert(SourceLoader, "", ev.Path, b)
	out.RealPath = realPath
	return []Event{out}, nil
}

// RuleAdapter runs a Map, MapWithDeps or Spread rule reactively. It
// re-runs a source when the source changes or when any dependency the
// source declared changes, and removes outputs that are no longer produced.
type RuleAdapter struct {
	Rule  rule.Rule
	Cache *build.Cache
}

func (a *RuleAdapter) Process(ev Event, idx *Index) ([]Event, error) {
	if ev.Kind == Notice {
		return nil, nil
	}
	var out []Event

	if a.Rule.Matches(ev.Path) {
		switch ev.Kind {
		case Inserted:
			evs, err := a.apply(ev.Path, ev.Blob(), idx)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
		case Removed:
			idx.ClearDeps(a.Rule.Name, ev.Path)
			for _, p := range idx.TakeDerived(a.Rule.Name, ev.Path) {
				out = append(out, Remove(SourceRule, a.Rule.Name, p))
			}
		}
	}

	if a.Rule.Kind == rule.KindMapWithDeps {
		for _, src := range idx.Dependents(a.Rule.Name, ev.Path) {
			if src == ev.Path {
				continue
			}
			b, ok := idx.Lookup(src)
			if !ok {
				continue
			}
			evs, err := a.apply(src, b, idx)
			if err != nil {
				return nil, err
			}
			out = append(out, evs...)
		}
	}
	return out, nil
}

func (a *RuleAdapter) apply(src graph.Path, b graph.Blob, idx *Index) ([]Event, error) {
	if a.Rule.Kind == rule.KindMapWithDeps {
		deps := a.Rule.Deps(src, b)
		idx.SetDeps(a.Rule.Name, src, deps)
		if _, err := rule.Resolve(deps, idx.Lookup); err != nil {
			// Keep the last good output and rebuild once the dependency
			// shows up.
			return []Event{Notify(SourceRule, a.Rule.Name, src, "waiting: "+err.Error())}, nil
		}
	}

	res, err := build.Apply(a.Cache, a.Rule, src, b, idx.Lookup)
	if err != nil {
		return nil, err
	}

	outputs := make([]graph.Path, 0, len(res))
	for p := range res {
		outputs = append(outputs, p)
	}
	var out []Event
	for _, p := range idx.SetDerived(a.Rule.Name, src, outputs) {
		out = append(out, Remove(SourceRule, a.Rule.Name, p))
	}
	for _, p := range rule.View(res).Paths() {
		out = append(out, Insert(SourceRule, a.Rule.Name, p, res[p]))
	}
	return out, nil
}

// AggregateAdapter keeps an aggregate's input table in the index and
// re-renders the output whenever a row changes.
type AggregateAdapter struct {
	Rule  rule.Rule
	Cache *build.Cache
}

// Start renders the aggregate over an empty table so its output exists
// before any input arrives.
func (a *AggregateAdapter) Start(idx *Index) ([]Event, error) {
	if a.Rule.Demands != nil {
		idx.Table(a.Rule.Name).Reset(a.demanded(idx))
	}
	return a.render(idx)
}

func (a *AggregateAdapter) Process(ev Event, idx *Index) ([]Event, error) {
	if ev.Kind == Notice || ev.Path == a.Rule.Output {
		return nil, nil
	}
	table := idx.Table(a.Rule.Name)

	if a.Rule.Demands != nil {
		rows := a.demanded(idx)
		if _, now := rows[ev.Path]; !now && !table.Has(ev.Path) {
			return nil, nil
		}
		table.Reset(rows)
		return a.render(idx)
	}

	if !a.Rule.Matches(ev.Path) {
		return nil, nil
	}
	switch ev.Kind {
	case Inserted:
		table.Put(ev.Path, ev.Blob())
	case Removed:
		if !table.Delete(ev.Path) {
			return nil, nil
		}
	}
	return a.render(idx)
}

func (a *AggregateAdapter) demanded(idx *Index) rule.View {
	view := rule.View{}
	for _, p := range a.Rule.Inputs(idx.Tree()) {
		if b, ok := idx.Lookup(p); ok {
			view[p] = b
		}
	}
	return view
}

func (a *AggregateAdapter) render(idx *Index) ([]Event, error) {
	b, err := build.ApplyAggregate(a.Cache, a.Rule, idx.Table(a.Rule.Name).View())
	if err != nil {
		return nil, err
	}
	return []Event{Insert(SourceAggregate, a.Rule.Name, a.Rule.Output, b)}, nil
}

// Logger records every event and never emits.
type Logger struct {
	Logger *slog.Logger
}

func (l *Logger) Process(ev Event, _ *Index) ([]Event, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"source", ev.Source.String(), "path", string(ev.Path)}
	if ev.Rule != "" {
		attrs = append(attrs, "rule", ev.Rule)
	}
	switch ev.Kind {
	case Inserted:
		logger.Debug("inserted", append(attrs, "visibility", ev.Visibility.String(), "bytes", len(ev.Content))...)
	case Removed:
		logger.Debug("removed", attrs...)
	case Notice:
		if ev.Source == SourceWatcher {
			logger.Debug("change", append(attrs, "change", ev.Change.String())...)
		} else {
			// Rule and loader notices report something left unbuilt.
			logger.Warn(ev.Message, attrs...)
		}
	}
	return nil, nil
}

// ForRule wraps r in the matching adapter.
func ForRule(r rule.Rule, cache *build.Cache) Processor {
	if r.Kind == rule.KindAggregate {
		return &AggregateAdapter{Rule: r, Cache: cache}
	}
	return &RuleAdapter{Rule: r, Cache: cache}
}
