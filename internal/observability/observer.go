// Package observability provides the event hooks the timeline store reports
// through, plus log, metrics and scan-frequency observers.
package observability

import (
	"context"
	"time"

	"github.com/arkilian/timeline/pkg/types"
)

// Operation names reported in events.
const (
	OpAdd        = "add"
	OpGet        = "get"
	OpUpdate     = "update"
	OpList       = "list"
	OpSearch     = "search"
	OpRemove     = "remove"
	OpTag        = "tag"
	OpUntag      = "untag"
	OpStats      = "stats"
	OpPurge      = "purge"
	OpPurgeEntry = "purge_entry"
	OpArchive    = "archive"
)

// Event describes one completed store operation.
type Event struct {
	Op        string
	Namespace string
	Entity    string
	Key       string
	// Scope is the scan width of list and search operations.
	Scope string
	// Filters names the client-side filters applied (e.g. "category").
	Filters  []string
	Count    int
	Duration time.Duration
	Err      error
	// Entry is set for operations that write or delete a single entry.
	Entry *types.Entry
}

// Outcome is "ok" or "error".
func (e Event) Outcome() string {
	if e.Err != nil {
		return "error"
	}
	return "ok"
}

// Observer receives events. Implementations must be safe for concurrent use
// and must not block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards every event.
type Nop struct{}

func (Nop) Observe(context.Context, Event) {}

type multi []Observer

func (m multi) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	var m multi
	for _, o := range observers {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return Nop{}
	case 1:
		return m[0]
	}
	return m
}
