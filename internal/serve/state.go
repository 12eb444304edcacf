// Package serve holds the published view of the site and serves it over
// HTTP.
package serve

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/pipeline"
)

// Entry is one servable file.
type Entry struct {
	MIME    string
	Content []byte
	ModTime time.Time
}

// State is the published subset of the tree. Readers take the read lock;
// the pipeline consumer takes the write lock only to swap a finished entry
// in or out.
type State struct {
	mu      sync.RWMutex
	entries map[graph.Path]Entry
	now     func() time.Time
}

func NewState() *State {
	return &State{entries: make(map[graph.Path]Entry), now: time.Now}
}

// key normalizes a path: rooted, no trailing slash.
func key(p graph.Path) graph.Path {
	return graph.Clean(string(p))
}

// Apply implements pipeline.Sink. Published inserts upsert; intermediate
// inserts and removals drop the path.
func (s *State) Apply(ev pipeline.Event) {
	k := key(ev.Path)
	switch ev.Kind {
	case pipeline.Inserted:
		if ev.Visibility != pipeline.Published {
			s.delete(k)
			return
		}
		e := Entry{MIME: ev.MIME, Content: ev.Content, ModTime: s.now()}
		s.mu.Lock()
		s.entries[k] = e
		s.mu.Unlock()
	case pipeline.Removed:
		s.delete(k)
	}
}

func (s *State) delete(k graph.Path) {
	s.mu.Lock()
	delete(s.entries, k)
	s.mu.Unlock()
}

// Replace swaps in the published entries of t, dropping everything else.
func (s *State) Replace(t *graph.Tree) {
	now := s.now()
	next := make(map[graph.Path]Entry, t.Len())
	_ = t.Published().Walk(func(p graph.Path, b graph.Blob) error {
		next[key(p)] = Entry{MIME: b.MIME, Content: b.Content, ModTime: now}
		return nil
	})
	s.mu.Lock()
	s.entries = next
	s.mu.Unlock()
}

// Get returns the entry stored exactly at p.
func (s *State) Get(p graph.Path) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key(p)]
	return e, ok
}

// Resolve maps a request path to a stored entry. Candidates are tried in
// order: the path itself, path+".html", path+"/index.html". A trailing
// slash names a directory, so only the index candidate is tried for it.
func (s *State) Resolve(request string) (graph.Path, Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range candidates(request) {
		if e, ok := s.entries[c]; ok {
			return c, e, true
		}
	}
	return "", Entry{}, false
}

func candidates(request string) []graph.Path {
	p := graph.Clean(request)
	if p == graph.Root {
		return []graph.Path{"/index.html"}
	}
	index := p.Join("index.html")
	if strings.HasSuffix(request, "/") {
		return []graph.Path{index}
	}
	return []graph.Path{p, graph.Path(string(p) + ".html"), index}
}

// Len returns the number of published entries.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Paths returns every published path in lexical order.
func (s *State) Paths() []graph.Path {
	s.mu.RLock()
	paths := make([]graph.Path, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	s.mu.RUnlock()
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}

var _ pipeline.Sink = (*State)(nil)
