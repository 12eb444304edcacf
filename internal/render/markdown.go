package render

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Document is a parsed markdown source.
type Document struct {
	Meta Meta
	// Title is the front matter title, else the first level-one heading.
	Title string
	// Images lists local image references in document order, as written.
	Images []string

	body []byte
	root ast.Node
}

// Markdown converts markdown to HTML fragments with GFM extensions and
// chroma-highlighted fenced code blocks.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown builds a converter. h may be nil to leave code blocks plain.
func NewMarkdown(h *Highlighter) *Markdown {
	opts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	}
	if h != nil {
		opts = append(opts, goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{h: h}, 100)),
		))
	}
	return &Markdown{md: goldmark.New(opts...)}
}

// Parse splits front matter and parses the body.
func (m *Markdown) Parse(src []byte) (*Document, error) {
	meta, body, err := SplitFrontMatter(src)
	if err != nil {
		return nil, err
	}
	root := m.md.Parser().Parse(text.NewReader(body))

	doc := &Document{Meta: meta, body: body, root: root}
	if title, ok := meta.Lookup("$.title"); ok {
		doc.Title = title
	}
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if doc.Title == "" && node.Level == 1 {
				doc.Title = string(node.Text(body))
			}
		case *ast.Image:
			if dest := string(node.Destination); isLocalRef(dest) {
				doc.Images = append(doc.Images, dest)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Render writes the document body as an HTML fragment.
func (m *Markdown) Render(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := m.md.Renderer().Render(&buf, doc.body, doc.root); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

// isLocalRef reports whether an image destination points into the site
// rather than at another host or an inline data URI.
func isLocalRef(dest string) bool {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "//") {
		return false
	}
	u, err := url.Parse(dest)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// RefPath strips query and fragment from a local reference.
func RefPath(dest string) string {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		dest = dest[:i]
	}
	if u, err := url.PathUnescape(dest); err == nil {
		return u
	}
	return dest
}

// codeBlockRenderer replaces goldmark's fenced code output with chroma's.
type codeBlockRenderer struct {
	h *Highlighter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
}

func (r *codeBlockRenderer) renderFencedCode(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	block := n.(*ast.FencedCodeBlock)
	var code strings.Builder
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}
	lang := string(block.Language(source))
	if err := r.h.Highlight(w, code.String(), lang, ""); err != nil {
		return ast.WalkStop, err
	}
	return ast.WalkSkipChildren, nil
}
