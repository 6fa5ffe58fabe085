package telemetry

import (
	"context"

	"codeberg.org/werrin/pithermd/internal/event"
)

// Recorder defines the core domain interface: a sink for aggregated
// system events.
type Recorder interface {
	Record(ctx context.Context, ev *event.SystemEvent) error
	Close() error
}

// Repository defines the interface for event storage.
type Repository interface {
	Store(ev *event.SystemEvent) error
	Close() error
}
