package service

import (
	"context"
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/domain/event"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
	"github.com/gatehouse-io/gatehouse/internal/port/eventstore"
)

// ReplayService reconstructs an execution's audit trail from its persisted
// event stream. Rejected runs are retained, so the trail survives the run.
type ReplayService struct {
	store  database.Store
	events eventstore.Store
}

// NewReplayService creates a ReplayService.
func NewReplayService(store database.Store, events eventstore.Store) *ReplayService {
	return &ReplayService{store: store, events: events}
}

// Timeline is a run together with its ordered event stream.
type Timeline struct {
	Run    *run.SandboxRun  `json:"run"`
	Events []event.RunEvent `json:"events"`
	// Repaired reports whether a repair cycle started during this run's
	// execution.
	Repaired bool `json:"repaired"`
	// Terminal reports whether the stream carries its terminal event. A
	// false value on a finished run indicates an aborted process.
	Terminal bool `json:"terminal"`
}

// Timeline loads the run and its full event stream.
func (s *ReplayService) Timeline(ctx context.Context, runID string) (*Timeline, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	events, err := s.events.LoadByRun(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("timeline events: %w", err)
	}

	t := &Timeline{Run: r, Events: events}
	for _, ev := range events {
		switch ev.Type {
		case event.TypeRepairStarted:
			t.Repaired = true
		case event.TypeTerminal:
			t.Terminal = true
		}
	}
	return t, nil
}

// Replay returns the run's events with version in the inclusive range
// [from, to]. A zero bound leaves that side open.
func (s *ReplayService) Replay(ctx context.Context, runID string, from, to int) ([]event.RunEvent, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	events, err := s.events.LoadByRun(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	if from == 0 && to == 0 {
		return events, nil
	}

	var out []event.RunEvent
	for _, ev := range events {
		if from > 0 && ev.Version < from {
			continue
		}
		if to > 0 && ev.Version > to {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
