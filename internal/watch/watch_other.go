//go:build !linux

package watch

import (
	"context"
	"log/slog"

	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/pipeline"
)

// Watcher is unavailable on this platform.
type Watcher struct{}

func New(ingest.DirMap, *slog.Logger) (*Watcher, error) { return nil, ErrUnsupported }

func (w *Watcher) Close() error { return nil }

func (w *Watcher) Run(context.Context, chan<- pipeline.Event) error { return ErrUnsupported }
