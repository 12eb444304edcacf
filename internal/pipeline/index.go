package pipeline

import (
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/rule"
)

type ruleKey struct {
	rule string
	path graph.Path
}

// Index is the state processors share. It is owned by the pipeline
// consumer and passed into every Process call; processors keep no registries
// of their own. It is not safe for concurrent use.
type Index struct {
	// mirror holds every blob currently inserted, published or not.
	mirror *graph.Tree

	// Paths are interned to uint32 so derived and dependency sets can be
	// roaring bitmaps.
	ids   map[graph.Path]uint32
	paths []graph.Path

	derived    map[ruleKey]*roaring.Bitmap // (rule, source) -> outputs
	depsOf     map[ruleKey][]graph.Path    // (rule, source) -> declared deps
	dependents map[ruleKey]*roaring.Bitmap // (rule, dep) -> sources

	tables map[string]*Table
}

func NewIndex() *Index {
	return &Index{
		mirror:     graph.NewTree(),
		ids:        make(map[graph.Path]uint32),
		derived:    make(map[ruleKey]*roaring.Bitmap),
		depsOf:     make(map[ruleKey][]graph.Path),
		dependents: make(map[ruleKey]*roaring.Bitmap),
		tables:     make(map[string]*Table),
	}
}

// Lookup returns the current blob at p.
func (x *Index) Lookup(p graph.Path) (graph.Blob, bool) {
	return x.mirror.Lookup(p)
}

// Tree exposes the mirror. Callers must not modify it.
func (x *Index) Tree() *graph.Tree {
	return x.mirror
}

// observe keeps the mirror in step with the event stream.
func (x *Index) observe(ev Event) {
	switch ev.Kind {
	case Inserted:
		x.mirror.Insert(ev.Path, ev.Blob())
	case Removed:
		x.mirror.Remove(ev.Path)
	}
}

func (x *Index) intern(p graph.Path) uint32 {
	if id, ok := x.ids[p]; ok {
		return id
	}
	id := uint32(len(x.paths))
	x.ids[p] = id
	x.paths = append(x.paths, p)
	return id
}

func (x *Index) resolve(bm *roaring.Bitmap) []graph.Path {
	if bm == nil {
		return nil
	}
	out := make([]graph.Path, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, x.paths[it.Next()])
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetDerived records the outputs ruleName produced from src and returns the
// outputs it produced last time but not now.
func (x *Index) SetDerived(ruleName string, src graph.Path, outputs []graph.Path) (stale []graph.Path) {
	key := ruleKey{ruleName, src}
	next := roaring.New()
	for _, p := range outputs {
		next.Add(x.intern(p))
	}
	if prev, ok := x.derived[key]; ok {
		stale = x.resolve(roaring.AndNot(prev, next))
	}
	if next.IsEmpty() {
		delete(x.derived, key)
	} else {
		x.derived[key] = next
	}
	return stale
}

// Derived returns the outputs ruleName last produced from src.
func (x *Index) Derived(ruleName string, src graph.Path) []graph.Path {
	return x.resolve(x.derived[ruleKey{ruleName, src}])
}

// TakeDerived forgets and returns the outputs ruleName produced from src.
func (x *Index) TakeDerived(ruleName string, src graph.Path) []graph.Path {
	key := ruleKey{ruleName, src}
	out := x.resolve(x.derived[key])
	delete(x.derived, key)
	return out
}

// SetDeps replaces the dependencies src declared under ruleName.
func (x *Index) SetDeps(ruleName string, src graph.Path, deps []graph.Path) {
	x.ClearDeps(ruleName, src)
	if len(deps) == 0 {
		return
	}
	id := x.intern(src)
	for _, d := range deps {
		key := ruleKey{ruleName, d}
		bm, ok := x.dependents[key]
		if !ok {
			bm = roaring.New()
			x.dependents[key] = bm
		}
		bm.Add(id)
	}
	x.depsOf[ruleKey{ruleName, src}] = append([]graph.Path(nil), deps...)
}

// ClearDeps drops every dependency edge from src under ruleName.
func (x *Index) ClearDeps(ruleName string, src graph.Path) {
	key := ruleKey{ruleName, src}
	old, ok := x.depsOf[key]
	if !ok {
		return
	}
	id := x.intern(src)
	for _, d := range old {
		dk := ruleKey{ruleName, d}
		if bm, ok := x.dependents[dk]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(x.dependents, dk)
			}
		}
	}
	delete(x.depsOf, key)
}

// Dependents returns the sources that declared dep under ruleName.
func (x *Index) Dependents(ruleName string, dep graph.Path) []graph.Path {
	return x.resolve(x.dependents[ruleKey{ruleName, dep}])
}

// Table returns the running input table of the named aggregate, creating
// it on first use.
func (x *Index) Table(name string) *Table {
	t, ok := x.tables[name]
	if !ok {
		t = &Table{rows: make(map[graph.Path]graph.Blob)}
		x.tables[name] = t
	}
	return t
}

// Table is an aggregate's current set of inputs.
type Table struct {
	rows map[graph.Path]graph.Blob
}

// Put adds or replaces a row.
func (t *Table) Put(p graph.Path, b graph.Blob) {
	t.rows[p] = b
}

// Delete removes a row and reports whether it was present.
func (t *Table) Delete(p graph.Path) bool {
	if _, ok := t.rows[p]; !ok {
		return false
	}
	delete(t.rows, p)
	return true
}

// Has reports whether p is a row.
func (t *Table) Has(p graph.Path) bool {
	_, ok := t.rows[p]
	return ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Reset replaces every row.
func (t *Table) Reset(rows rule.View) {
	t.rows = make(map[graph.Path]graph.Blob, len(rows))
	for p, b := range rows {
		t.rows[p] = b
	}
}

// View copies the rows for a build function.
func (t *Table) View() rule.View {
	v := make(rule.View, len(t.rows))
	for p, b := range t.rows {
		v[p] = b
	}
	return v
}
