package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/gatehouse-io/gatehouse/internal/domain/event"
)

// EventStore is a mutex-guarded in-memory eventstore.Store.
type EventStore struct {
	mu     sync.Mutex
	events map[string][]event.RunEvent // run id -> events
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]event.RunEvent)}
}

func (s *EventStore) Append(_ context.Context, ev *event.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.RunID] = append(s.events[ev.RunID], *ev)
	return nil
}

func (s *EventStore) LoadByRun(_ context.Context, runID string) ([]event.RunEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := make([]event.RunEvent, len(s.events[runID]))
	copy(evs, s.events[runID])
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Version < evs[j].Version })
	return evs, nil
}
