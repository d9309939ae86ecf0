package invalidation

import (
	"context"
	"log/slog"
)

// Broadcaster sends an event to sibling execution contexts. Implementations
// swallow their own failures; see the crosstab package.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event)
}

// Trigger is the helper called after a destructive or state-changing
// mutation has been confirmed by the backing store. It publishes on the
// local bus and broadcasts cross-context, fire-and-forget: it never waits
// for a consumer and never fails. The backing store's own change feed
// carries the third copy of the signal without an explicit trigger here.
type Trigger struct {
	bus       *Bus
	broadcast Broadcaster
	logger    *slog.Logger
}

func NewTrigger(bus *Bus, broadcast Broadcaster, logger *slog.Logger) *Trigger {
	return &Trigger{bus: bus, broadcast: broadcast, logger: logger}
}

// Fire fans the event out. A channel problem here must never make the
// already-confirmed mutation look failed, so there is nothing to return.
func (t *Trigger) Fire(ctx context.Context, event Event) {
	t.bus.Publish(event)

	if t.broadcast != nil {
		t.broadcast.Broadcast(ctx, event)
	}

	t.logger.Debug("invalidation triggered",
		"kind", event.Kind,
		"subject_id", event.SubjectID,
		"actor", event.Actor,
	)
}
