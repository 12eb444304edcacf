// Package watch turns filesystem changes under DirMaps into pipeline
// notices. Each watcher first reports every existing file as modified, then
// follows changes until its context ends.
package watch

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/quire/internal/ingest"
	"github.com/agentic-research/quire/internal/pipeline"
)

// ErrUnsupported is returned on platforms without a watcher backend.
var ErrUnsupported = errors.New("file watching is not supported on this platform")

// DefaultQueue is the capacity of the shared event channel. Watchers block
// when it is full.
const DefaultQueue = 256

// All sets up one watcher per map and runs them until ctx is done or one
// fails. Setup errors are returned before anything is sent. The channel is
// closed when every watcher has stopped.
func All(ctx context.Context, maps []ingest.DirMap, out chan<- pipeline.Event, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	watchers := make([]*Watcher, 0, len(maps))
	for _, m := range maps {
		w, err := New(m, logger)
		if err != nil {
			for _, prev := range watchers {
				_ = prev.Close()
			}
			close(out)
			return err
		}
		watchers = append(watchers, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		g.Go(func() error { return w.Run(gctx, out) })
	}
	err := g.Wait()
	close(out)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
