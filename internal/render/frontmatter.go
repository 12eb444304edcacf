package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ohler55/ojg/jp"
	"gopkg.in/yaml.v3"
)

var fence = []byte("---")

// Meta is decoded YAML front matter.
type Meta map[string]any

// SplitFrontMatter separates a leading "---" delimited YAML block from the
// document body. Documents without one return nil Meta and the input as body.
func SplitFrontMatter(src []byte) (Meta, []byte, error) {
	rest, ok := cutLine(src, fence)
	if !ok {
		return nil, src, nil
	}
	var block []byte
	for len(rest) > 0 {
		line, next := nextLine(rest)
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fence) {
			meta := Meta{}
			if err := yaml.Unmarshal(block, &meta); err != nil {
				return nil, nil, fmt.Errorf("front matter: %w", err)
			}
			return meta, next, nil
		}
		block = append(block, line...)
		block = append(block, '\n')
		rest = next
	}
	// An opening fence with no closing fence is ordinary content.
	return nil, src, nil
}

// Draft reports whether the front matter sets draft: true.
func (m Meta) Draft() bool {
	v, _ := m["draft"].(bool)
	return v
}

// Lookup evaluates a JSONPath expression such as "$.title" or
// "$.author.name" against the front matter and formats the first match.
func (m Meta) Lookup(expr string) (string, bool) {
	if m == nil || expr == "" {
		return "", false
	}
	x, err := jp.ParseString(expr)
	if err != nil {
		return "", false
	}
	results := x.Get(map[string]any(m))
	if len(results) == 0 || results[0] == nil {
		return "", false
	}
	return formatScalar(results[0]), true
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// cutLine strips a first line equal to want (ignoring trailing whitespace).
func cutLine(src, want []byte) ([]byte, bool) {
	line, rest := nextLine(src)
	if !bytes.Equal(bytes.TrimRight(line, " \t\r"), want) {
		return nil, false
	}
	return rest, true
}

func nextLine(src []byte) (line, rest []byte) {
	if i := bytes.IndexByte(src, '\n'); i >= 0 {
		return src[:i], src[i+1:]
	}
	return src, nil
}
