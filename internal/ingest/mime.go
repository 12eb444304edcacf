package ingest

import (
	"mime"
	"net/http"
	"strings"

	"github.com/agentic-research/quire/internal/graph"
)

// siteTypes pins the types that matter for a site so output does not depend
// on the host's mime.types file.
var siteTypes = map[string]string{
	".css":   "text/css; charset=utf-8",
	".gif":   "image/gif",
	".go":    "text/x-go; charset=utf-8",
	".gz":    "application/gzip",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json",
	".md":    "text/markdown; charset=utf-8",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xml":   "application/xml",
	".zst":   "application/zstd",
}

// DetectMIME guesses a MIME type from the extension of p, falling back to
// sniffing content. content may be nil.
func DetectMIME(p graph.Path, content []byte) string {
	ext := strings.ToLower(p.Ext())
	if t, ok := siteTypes[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if content != nil {
		return http.DetectContentType(content)
	}
	return "application/octet-stream"
}

// IsText reports whether a MIME type carries text worth compressing.
func IsText(mimeType string) bool {
	mt, _, _ := mime.ParseMediaType(mimeType)
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/xml", mt == "image/svg+xml", mt == "application/javascript":
		return true
	}
	return false
}
