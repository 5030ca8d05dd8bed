package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-io/gatehouse/internal/domain/event"
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event. The (run_id, version) unique constraint makes
// duplicate emission for a version a hard error rather than a silent reorder.
func (s *EventStore) Append(ctx context.Context, ev *event.RunEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_events (id, run_id, project_id, event_type, payload, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.RunID, ev.ProjectID, string(ev.Type), ev.Payload, ev.Version, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadByRun returns all events for the given run, ordered by version ascending.
func (s *EventStore) LoadByRun(ctx context.Context, runID string) ([]event.RunEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, project_id, event_type, payload, version, created_at
		 FROM run_events WHERE run_id = $1 ORDER BY version ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("load events by run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []event.RunEvent
	for rows.Next() {
		var ev event.RunEvent
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.ProjectID, &ev.Type, &ev.Payload, &ev.Version, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
