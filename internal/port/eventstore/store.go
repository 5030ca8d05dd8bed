// Package eventstore defines the port interface for the append-only run
// event trajectory.
package eventstore

import (
	"context"

	"github.com/gatehouse-io/gatehouse/internal/domain/event"
)

// Store is the port interface for appending and loading run events.
type Store interface {
	// Append persists a new event. Events are immutable once written.
	Append(ctx context.Context, ev *event.RunEvent) error

	// LoadByRun returns all events for the given run, ordered by version.
	LoadByRun(ctx context.Context, runID string) ([]event.RunEvent, error)
}
