package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultMaxHops bounds how many derivation steps one source event may
// cause. Real rule chains are a handful of steps deep; hitting the limit
// means some processor keeps re-triggering itself.
const DefaultMaxHops = 64

// ErrCascadeLimit is returned when a cascade exceeds MaxHops.
var ErrCascadeLimit = errors.New("event cascade exceeded hop limit")

// Processor reacts to one event. It returns nil when not interested.
// Returned events are queued behind everything already pending for the
// current source event. An error stops the pipeline.
type Processor interface {
	Process(ev Event, idx *Index) ([]Event, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ev Event, idx *Index) ([]Event, error)

func (f ProcessorFunc) Process(ev Event, idx *Index) ([]Event, error) { return f(ev, idx) }

// Starter is implemented by processors that emit events before the first
// input arrives, such as aggregates that must exist while still empty.
type Starter interface {
	Start(idx *Index) ([]Event, error)
}

// Sink receives every event after it is dequeued and before processors see
// it. The serving state is the usual sink.
type Sink interface {
	Apply(ev Event)
}

// Pipeline routes events through processors in order.
type Pipeline struct {
	Processors []Processor
	Sink       Sink
	Index      *Index
	Logger     *slog.Logger
	// MaxHops overrides DefaultMaxHops when positive.
	MaxHops int

	started bool
}

// New creates a pipeline with a fresh index.
func New(sink Sink, procs ...Processor) *Pipeline {
	return &Pipeline{
		Processors: procs,
		Sink:       sink,
		Index:      NewIndex(),
	}
}

type queued struct {
	ev  Event
	hop int
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) maxHops() int {
	if p.MaxHops > 0 {
		return p.MaxHops
	}
	return DefaultMaxHops
}

// Start lets every Starter emit its initial events. Run calls it; tests
// driving Dispatch directly call it once up front.
func (p *Pipeline) Start() error {
	if p.started {
		return nil
	}
	p.started = true
	if p.Index == nil {
		p.Index = NewIndex()
	}
	for i, proc := range p.Processors {
		s, ok := proc.(Starter)
		if !ok {
			continue
		}
		events, err := s.Start(p.Index)
		if err != nil {
			return fmt.Errorf("start processor %d (%T): %w", i, proc, err)
		}
		for _, ev := range events {
			if err := p.Dispatch(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dispatch processes ev and everything it causes, FIFO, before returning.
// Every processor sees an event before any event it caused is dequeued.
func (p *Pipeline) Dispatch(ev Event) error {
	if p.Index == nil {
		p.Index = NewIndex()
	}
	limit := p.maxHops()
	queue := []queued{{ev: ev}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		p.Index.observe(cur.ev)
		if p.Sink != nil {
			p.Sink.Apply(cur.ev)
		}

		for i, proc := range p.Processors {
			out, err := proc.Process(cur.ev, p.Index)
			if err != nil {
				return fmt.Errorf("processor %d (%T) on %s: %w", i, proc, cur.ev, err)
			}
			if len(out) == 0 {
				continue
			}
			if cur.hop+1 > limit {
				return fmt.Errorf("%s after %d hops from %s: %w", out[0].Path, limit, ev.Path, ErrCascadeLimit)
			}
			for _, o := range out {
				queue = append(queue, queued{ev: o, hop: cur.hop + 1})
			}
		}
	}
	return nil
}

// Run starts the pipeline and consumes events until ctx is done or events
// is closed. The first processor error ends the loop.
func (p *Pipeline) Run(ctx context.Context, events <-chan Event) error {
	if err := p.Start(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.Dispatch(ev); err != nil {
				p.logger().Error("pipeline stopped", "event", ev.String(), "error", err)
				return err
			}
		}
	}
}
