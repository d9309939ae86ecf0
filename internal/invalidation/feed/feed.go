// Package feed subscribes to the backing store's row-level change stream and
// translates change records into invalidation events. Deltas are never
// applied locally: every change collapses into a Generic event and the
// portal re-fetches everything it cares about. Patching derived aggregates
// (balances, totals) incrementally is how views drift.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quorum/internal/invalidation"
)

// EventType names a row-level change class.
type EventType string

const (
	Insert EventType = "insert"
	Update EventType = "update"
	Delete EventType = "delete"
)

// TableFilter declares interest in a table. Empty Events means all three
// change classes. RowFilter is an optional "column=value" equality match
// against the change record's row image (e.g. "status=completed").
type TableFilter struct {
	Table     string
	Events    []EventType
	RowFilter string
}

func (f TableFilter) matches(c Change) bool {
	if c.Table != f.Table {
		return false
	}
	if len(f.Events) > 0 {
		ok := false
		for _, e := range f.Events {
			if e == c.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.RowFilter != "" {
		col, want, ok := cutFilter(f.RowFilter)
		if !ok {
			return false
		}
		if got, present := c.Row[col]; !present || got != want {
			return false
		}
	}
	return true
}

func cutFilter(expr string) (col, value string, ok bool) {
	for i := 0; i < len(expr); i++ {
		if expr[i] == '=' {
			return expr[:i], expr[i+1:], true
		}
	}
	return "", "", false
}

// Change is one row-level change record from the backing store.
type Change struct {
	Table      string            `json:"table"`
	Type       EventType         `json:"type"`
	RowID      string            `json:"row_id"`
	Row        map[string]string `json:"row,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Source is a backend delivering change records. One logical subscription is
// opened per portal per mount, never per row. Cancel releases it; calling
// cancel twice is a no-op.
type Source interface {
	Subscribe(ctx context.Context, filters []TableFilter, fn func(Change)) (cancel func(), err error)
}

// Adapter turns a Source's change records into invalidation events for one
// portal.
type Adapter struct {
	source Source
	portal string
}

func NewAdapter(source Source, portal string) *Adapter {
	return &Adapter{source: source, portal: portal}
}

// Subscribe opens the portal's subscription and forwards each matching
// change as a Generic event. The event carries the table name as its
// summary; receivers re-query ground truth regardless.
func (a *Adapter) Subscribe(ctx context.Context, filters []TableFilter, onEvent func(invalidation.Event)) (func(), error) {
	if len(filters) == 0 {
		return func() {}, nil
	}
	return a.source.Subscribe(ctx, filters, func(c Change) {
		onEvent(invalidation.Event{
			ID:         uuid.New(),
			SubjectID:  c.RowID,
			Kind:       invalidation.KindGeneric,
			Actor:      "change-feed",
			OccurredAt: c.OccurredAt,
			Summary:    []string{fmt.Sprintf("%s %s", c.Table, c.Type)},
		})
	})
}
