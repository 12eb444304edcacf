// Package site turns a site configuration into loader mounts, the ordered
// rule list for one-shot builds, and the equivalent processor list for the
// live pipeline.
package site

import (
	"fmt"
	"log/slog"

	"github.com/agentic-research/quire/api"
	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/pipeline"
	"github.com/agentic-research/quire/internal/render"
	"github.com/agentic-research/quire/internal/rule"
)

// Site is a configured site.
type Site struct {
	cfg       *api.Site
	hl        *render.Highlighter
	md        *render.Markdown
	encodings []render.Encoding
}

// New validates cfg and prepares its renderers.
func New(cfg *api.Site) (*Site, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Site{cfg: cfg}
	for _, name := range cfg.Compress {
		enc, err := render.ParseEncoding(name)
		if err != nil {
			return nil, err
		}
		s.encodings = append(s.encodings, enc)
	}
	style, classes := api.DefaultStyle, false
	if cfg.Highlight != nil {
		if cfg.Highlight.Style != "" {
			style = cfg.Highlight.Style
		}
		classes = cfg.Highlight.Classes
	}
	s.hl = render.NewHighlighter(style, classes)
	s.md = render.NewMarkdown(s.hl)
	return s, nil
}

// Config returns the configuration the site was built from.
func (s *Site) Config() *api.Site { return s.cfg }

// DirMaps converts the mount blocks to loader mappings.
func (s *Site) DirMaps() []ingest.DirMap {
	maps := make([]ingest.DirMap, 0, len(s.cfg.Mounts))
	for _, m := range s.cfg.Mounts {
		var binary ingest.Filter
		if !m.KeepBinary() {
			binary = ingest.SkipBinary
		}
		maps = append(maps, ingest.DirMap{
			Source:  m.Source,
			Prefix:  graph.Clean(m.Prefix),
			Publish: m.Publish,
			Filter:  ingest.All(ingest.Include(m.Include...), ingest.Exclude(m.Exclude...), binary),
			Prune:   ingest.PruneMatching(m.Exclude...),
		})
	}
	return maps
}

// Rules returns the ordered rule list: markdown pages, Go listings, one
// index per index block, the highlight stylesheet, then compressed
// variants of everything published before them.
func (s *Site) Rules() []rule.Rule {
	rules := []rule.Rule{s.markdownRule(), s.goSourceRule()}
	for _, ix := range s.cfg.Indexes {
		rules = append(rules, s.indexRule(ix))
	}
	if s.hl.Classes() {
		rules = append(rules, s.stylesheetRule())
	}
	if len(s.encodings) > 0 {
		rules = append(rules, s.compressRule())
	}
	return rules
}

// Build loads every mount and applies Rules.
func (s *Site) Build(cache *build.Cache, logger *slog.Logger) (*graph.Tree, error) {
	tree, err := ingest.Load(s.DirMaps())
	if err != nil {
		return nil, err
	}
	out, err := (&build.Executor{Cache: cache, Logger: logger}).Build(tree, s.Rules())
	if err != nil {
		return nil, fmt.Errorf("build site: %w", err)
	}
	return out, nil
}

// Processors returns the live equivalent of Rules: a file loader over the
// mounts, one adapter per rule in the same order, and an event logger.
func (s *Site) Processors(cache *build.Cache, logger *slog.Logger) ([]pipeline.Processor, error) {
	loader, err := pipeline.NewFileLoader(s.DirMaps())
	if err != nil {
		return nil, err
	}
	procs := []pipeline.Processor{loader}
	for _, r := range s.Rules() {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		procs = append(procs, pipeline.ForRule(r, cache))
	}
	return append(procs, &pipeline.Logger{Logger: logger}), nil
}
