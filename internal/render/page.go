package render

import (
	"bytes"
	"html/template"
	"sort"
	"strings"

	"mvdan.cc/gofumpt/format"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- range .Stylesheets}}
<link rel="stylesheet" href="{{.}}">
{{- end}}
</head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<h1>{{.Title}}</h1>
<ul class="index">
{{- range .Entries}}
<li>{{if .Date}}<time datetime="{{.Date}}">{{.Date}}</time> {{end}}<a href="{{.Link}}">{{.Title}}</a></li>
{{- end}}
</ul>
`))

// Page is a full HTML document around a rendered fragment.
type Page struct {
	Title       string
	Stylesheets []string
	Body        []byte
}

// HTML renders the page. Body is trusted HTML produced by this package.
func (p Page) HTML() ([]byte, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title       string
		Stylesheets []string
		Body        template.HTML
	}{p.Title, p.Stylesheets, template.HTML(p.Body)})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IndexEntry is one line of an index page.
type IndexEntry struct {
	Link  string
	Title string
	Date  string
	// Key orders entries with equal dates. Usually the source path.
	Key string
}

// SortIndex orders entries newest first, then by Key. Undated entries
// sort after dated ones.
func SortIndex(entries []IndexEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Date != b.Date {
			if a.Date == "" || b.Date == "" {
				return b.Date == ""
			}
			return a.Date > b.Date
		}
		return a.Key < b.Key
	})
}

// Index renders a sorted list of links as an HTML fragment.
func Index(title string, entries []IndexEntry) ([]byte, error) {
	sorted := append([]IndexEntry(nil), entries...)
	SortIndex(sorted)
	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, struct {
		Title   string
		Entries []IndexEntry
	}{title, sorted})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GoListing formats Go source with gofumpt and highlights it. Source that
// does not parse is highlighted unformatted.
func GoListing(h *Highlighter, filename string, src []byte) ([]byte, error) {
	formatted, err := format.Source(src, format.Options{})
	if err != nil {
		formatted = src
	}
	var buf bytes.Buffer
	if err := h.Highlight(&buf, string(formatted), "go", filename); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RelativeLink returns the href from a page at fromDir to target, both
// slash-rooted virtual paths.
func RelativeLink(fromDir, target string) string {
	from := strings.Split(strings.Trim(fromDir, "/"), "/")
	to := strings.Split(strings.Trim(target, "/"), "/")
	if from[0] == "" {
		from = nil
	}
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var parts []string
	for range from[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return strings.Join(parts, "/")
}
