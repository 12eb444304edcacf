// Package render holds the content collaborators the site rules call:
// markdown to HTML, syntax highlighting, Go listings, index pages and
// compressed variants. Nothing here knows about trees or events.
package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is used when no highlight style is configured.
const DefaultStyle = "github"

// Highlighter renders source code to HTML with chroma.
type Highlighter struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
	classes   bool
}

// NewHighlighter picks a chroma style by name (unknown names fall back to
// chroma's default). With classes set, output carries CSS classes and the
// stylesheet comes from CSS; otherwise styles are inlined.
func NewHighlighter(style string, classes bool) *Highlighter {
	if style == "" {
		style = DefaultStyle
	}
	return &Highlighter{
		style: styles.Get(style),
		formatter: chromahtml.New(
			chromahtml.WithClasses(classes),
			chromahtml.TabWidth(4),
		),
		classes: classes,
	}
}

// Classes reports whether output depends on the CSS stylesheet.
func (h *Highlighter) Classes() bool {
	return h.classes
}

// Highlight writes code as highlighted HTML. language wins over filename;
// when neither names a lexer the content is analysed, then plain text.
func (h *Highlighter) Highlight(w io.Writer, code, language, filename string) error {
	lexer := pickLexer(code, language, filename)
	it, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return fmt.Errorf("tokenise: %w", err)
	}
	return h.formatter.Format(w, h.style, it)
}

// CSS returns the stylesheet for class-based output.
func (h *Highlighter) CSS() ([]byte, error) {
	var buf bytes.Buffer
	if err := h.formatter.WriteCSS(&buf, h.style); err != nil {
		return nil, fmt.Errorf("write css: %w", err)
	}
	return buf.Bytes(), nil
}

func pickLexer(code, language, filename string) chroma.Lexer {
	if language != "" {
		if l := lexers.Get(language); l != nil {
			return l
		}
	}
	if filename != "" {
		if l := lexers.Match(filename); l != nil {
			return l
		}
	}
	if l := lexers.Analyse(code); l != nil {
		return l
	}
	return lexers.Fallback
}
