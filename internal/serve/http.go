package serve

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/agentic-research/quire/internal/graph"
	"github.com/agentic-research/quire/internal/render"
)

// encodings are tried in preference order when a precompressed variant
// exists next to the resolved path.
var encodings = []render.Encoding{render.Zstd, render.Gzip}

// Handler serves s. Only GET and HEAD are routed; anything else is 405.
func Handler(s *State, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{state: s, logger: logger}

	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{http.MethodGet, "/*path", h.serveFile},
		{http.MethodHead, "/*path", h.serveFile},
	}

	r := httprouter.New()
	r.HandleMethodNotAllowed = true
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	for _, route := range routes {
		r.Handle(route.method, route.route, logWrapper(logger, route.handler))
	}
	return r
}

type handler struct {
	state  *State
	logger *slog.Logger
}

func (h *handler) serveFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, e, ok := h.state.Resolve(ps.ByName("path"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	if e.MIME != "" {
		w.Header().Set("Content-Type", e.MIME)
	}
	body := e.Content
	if enc, variant, ok := h.variant(p, r.Header.Get("Accept-Encoding")); ok {
		w.Header().Set("Content-Encoding", string(enc))
		body = variant.Content
	}
	if h.hasVariants(p) {
		w.Header().Set("Vary", "Accept-Encoding")
	}
	http.ServeContent(w, r, p.Base(), e.ModTime, bytes.NewReader(body))
}

func (h *handler) variant(p graph.Path, accept string) (render.Encoding, Entry, bool) {
	for _, enc := range encodings {
		if !accepts(accept, string(enc)) {
			continue
		}
		if v, ok := h.state.Get(graph.Path(string(p) + enc.Suffix())); ok {
			return enc, v, true
		}
	}
	return "", Entry{}, false
}

func (h *handler) hasVariants(p graph.Path) bool {
	for _, enc := range encodings {
		if _, ok := h.state.Get(graph.Path(string(p) + enc.Suffix())); ok {
			return true
		}
	}
	return false
}

// accepts reports whether an Accept-Encoding header allows coding. A q of
// zero rejects it; a wildcard accepts anything not named.
func accepts(header, coding string) bool {
	wildcard := false
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		rejected := false
		for _, param := range strings.Split(params, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if ok && strings.TrimSpace(k) == "q" {
				if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && q == 0 {
					rejected = true
				}
			}
		}
		switch name {
		case coding:
			return !rejected
		case "*":
			wildcard = !rejected
		}
	}
	return wildcard
}

// logWrapper logs every request after it is handled.
func logWrapper(logger *slog.Logger, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r, ps)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
