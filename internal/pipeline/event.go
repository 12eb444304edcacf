// Package pipeline runs the reactive side of quire: change notifications go
// through an ordered list of processors, each of which may emit further
// events, until the cascade settles.
package pipeline

import (
	"fmt"

	"github.com/agentic-research/quire/internal/graph"
)

// Source says which stage produced an event. It is a closed set; the
// free-form Rule field on Event is for diagnostics only.
type Source int

const (
	SourceWatcher Source = iota
	SourceLoader
	SourceRule
	SourceAggregate
)

func (s Source) String() string {
	switch s {
	case SourceWatcher:
		return "watcher"
	case SourceLoader:
		return "loader"
	case SourceRule:
		return "rule"
	case SourceAggregate:
		return "aggregate"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

type Kind int

const (
	Inserted Kind = iota
	Notice
	Removed
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Notice:
		return "notice"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Visibility int

const (
	Published Visibility = iota
	Intermediate
)

func (v Visibility) String() string {
	if v == Published {
		return "published"
	}
	return "intermediate"
}

// Change qualifies a Notice. Watchers only ever report these two.
type Change int

const (
	ChangeNone Change = iota
	ChangeModified
	ChangeRemoved
)

func (c Change) String() string {
	switch c {
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	}
	return ""
}

// Event is one message on the pipeline.
type Event struct {
	Source Source
	// Rule names the rule or processor that emitted the event. It is never
	// used for routing.
	Rule     string
	Path     graph.Path
	RealPath string
	Kind     Kind

	// Inserted only.
	MIME       string
	Content    []byte
	Visibility Visibility

	// Notice only.
	Change  Change
	Message string
}

// Modified is the watcher notice for a created or changed file.
func Modified(p graph.Path, realPath string) Event {
	return Event{Source: SourceWatcher, Path: p, RealPath: realPath, Kind: Notice, Change: ChangeModified, Message: "modified"}
}

// Deleted is the watcher notice for a removed file.
func Deleted(p graph.Path, realPath string) Event {
	return Event{Source: SourceWatcher, Path: p, RealPath: realPath, Kind: Notice, Change: ChangeRemoved, Message: "removed"}
}

// Insert builds an Inserted event carrying b.
func Insert(src Source, ruleName string, p graph.Path, b graph.Blob) Event {
	vis := Intermediate
	if b.Publish {
		vis = Published
	}
	return Event{Source: src, Rule: ruleName, Path: p, Kind: Inserted, MIME: b.MIME, Content: b.Content, Visibility: vis}
}

// Remove builds a Removed event.
func Remove(src Source, ruleName string, p graph.Path) Event {
	return Event{Source: src, Rule: ruleName, Path: p, Kind: Removed}
}

// Notify builds an informational Notice that no processor acts on.
func Notify(src Source, ruleName string, p graph.Path, msg string) Event {
	return Event{Source: src, Rule: ruleName, Path: p, Kind: Notice, Message: msg}
}

// Blob converts an Inserted event back into a tree blob.
func (e Event) Blob() graph.Blob {
	return graph.Blob{Content: e.Content, MIME: e.MIME, Publish: e.Visibility == Published}
}

func (e Event) String() string {
	switch e.Kind {
	case Inserted:
		return fmt.Sprintf("%s %s %s (%s, %d bytes)", e.Source, e.Kind, e.Path, e.Visibility, len(e.Content))
	case Notice:
		return fmt.Sprintf("%s %s %s: %s", e.Source, e.Kind, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s %s", e.Source, e.Kind, e.Path)
}
