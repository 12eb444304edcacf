package site

import (
	"fmt"

	"github.com/agentic-research/quire/api"
	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/render"
	"github.com/agentic-research/quire/internal/rule"
)

const (
	htmlMIME = "text/html; charset=utf-8"
	cssMIME  = "text/css; charset=utf-8"

	// StylesheetPath is where the highlight stylesheet is published when
	// highlighting uses classes.
	StylesheetPath graph.Path = "/assets/highlight.css"
)

// compressible lists the published extensions worth precompressing.
var compressible = []string{".html", ".css", ".js", ".svg", ".xml", ".json", ".txt"}

func (s *Site) stylesheets(page graph.Path) []string {
	if !s.hl.Classes() {
		return nil
	}
	return []string{render.RelativeLink(string(page.Dir()), string(StylesheetPath))}
}

// imageDeps resolves a page's local image references to tree paths.
func imageDeps(p graph.Path, doc *render.Document) []graph.Path {
	seen := make(map[graph.Path]bool)
	var deps []graph.Path
	for _, ref := range doc.Images {
		d := p.Resolve(render.RefPath(ref))
		if !seen[d] {
			seen[d] = true
			deps = append(deps, d)
		}
	}
	return deps
}

func (s *Site) markdownRule() rule.Rule {
	deps := func(p graph.Path, b graph.Blob) []graph.Path {
		doc, err := s.md.Parse(b.Content)
		if err != nil {
			// The build step reports the parse error.
			return nil
		}
		return imageDeps(p, doc)
	}
	build := func(p graph.Path, b graph.Blob, _ rule.View) (graph.Path, graph.Blob, error) {
		doc, err := s.md.Parse(b.Content)
		if err != nil {
			return "", graph.Blob{}, err
		}
		body, err := s.md.Render(doc)
		if err != nil {
			return "", graph.Blob{}, err
		}
		title := doc.Title
		if title == "" {
			title = p.WithExt("").Base()
		}
		out := p.WithExt(".html")
		html, err := render.Page{Title: title, Stylesheets: s.stylesheets(out), Body: body}.HTML()
		if err != nil {
			return "", graph.Blob{}, err
		}
		return out, graph.Blob{Content: html, MIME: htmlMIME, Publish: !doc.Meta.Draft()}, nil
	}
	return rule.NewMapWithDeps("markdown", rule.Ext(".md", ".markdown"), deps, build)
}

func (s *Site) goSourceRule() rule.Rule {
	return rule.NewMap("gosource", rule.Ext(".go"), func(p graph.Path, b graph.Blob) (graph.Path, graph.Blob, error) {
		listing, err := render.GoListing(s.hl, p.Base(), b.Content)
		if err != nil {
			return "", graph.Blob{}, err
		}
		out := graph.Path(string(p) + ".html")
		html, err := render.Page{Title: p.Base(), Stylesheets: s.stylesheets(out), Body: listing}.HTML()
		if err != nil {
			return "", graph.Blob{}, err
		}
		return out, graph.Blob{Content: html, MIME: htmlMIME, Publish: true}, nil
	})
}

func (s *Site) indexRule(ix api.Index) rule.Rule {
	output := graph.Clean(ix.Output)
	title := ix.Title
	if title == "" {
		title = ix.Name
	}
	return rule.NewAggregate("index:"+ix.Name, output, rule.Glob(ix.Pattern), func(in rule.View) (graph.Blob, error) {
		var entries []render.IndexEntry
		for _, p := range in.Paths() {
			doc, err := s.md.Parse(in[p].Content)
			if err != nil {
				return graph.Blob{}, fmt.Errorf("%s: %w", p, err)
			}
			if doc.Meta.Draft() {
				continue
			}
			entry := render.IndexEntry{
				Link:  render.RelativeLink(string(output.Dir()), string(p.WithExt(".html"))),
				Title: doc.Title,
				Key:   string(p),
			}
			if t, ok := doc.Meta.Lookup(ix.TitlePath); ok {
				entry.Title = t
			}
			if entry.Title == "" {
				entry.Title = p.WithExt("").Base()
			}
			if d, ok := doc.Meta.Lookup(ix.DatePath); ok {
				entry.Date = d
			}
			entries = append(entries, entry)
		}
		body, err := render.Index(title, entries)
		if err != nil {
			return graph.Blob{}, err
		}
		html, err := render.Page{Title: title, Stylesheets: s.stylesheets(output), Body: body}.HTML()
		if err != nil {
			return graph.Blob{}, err
		}
		return graph.Blob{Content: html, MIME: htmlMIME, Publish: true}, nil
	})
}

func (s *Site) stylesheetRule() rule.Rule {
	return rule.NewAggregate("highlight-css", StylesheetPath, rule.None, func(rule.View) (graph.Blob, error) {
		css, err := s.hl.CSS()
		if err != nil {
			return graph.Blob{}, err
		}
		return graph.Blob{Content: css, MIME: cssMIME, Publish: true}, nil
	})
}

func (s *Site) compressRule() rule.Rule {
	outputs := func(p graph.Path, b graph.Blob) []graph.Path {
		if !b.Publish || !ingest.IsText(b.MIME) {
			return nil
		}
		out := make([]graph.Path, 0, len(s.encodings))
		for _, enc := range s.encodings {
			out = append(out, graph.Path(string(p)+enc.Suffix()))
		}
		return out
	}
	spread := func(p graph.Path, b graph.Blob) (map[graph.Path]graph.Blob, error) {
		out := make(map[graph.Path]graph.Blob)
		if !b.Publish || !ingest.IsText(b.MIME) {
			return out, nil
		}
		for _, enc := range s.encodings {
			data, err := render.Compress(enc, b.Content)
			if err != nil {
				return nil, err
			}
			vp := graph.Path(string(p) + enc.Suffix())
			out[vp] = graph.Blob{Content: data, MIME: ingest.DetectMIME(vp, data), Publish: true}
		}
		return out, nil
	}
	return rule.NewSpread("compress", rule.Ext(compressible...), outputs, spread)
}
