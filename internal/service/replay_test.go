package service

import (
	"context"
	"errors"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/adapter/memstore"
	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/event"
)

func seedEvents(t *testing.T, events *memstore.EventStore, runID string, types ...event.Type) {
	t.Helper()
	for i, typ := range types {
		ev, err := event.New(runID, "p1", typ, i+1, map[string]string{})
		if err != nil {
			t.Fatalf("build event: %v", err)
		}
		if err := events.Append(context.Background(), ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
}

func TestTimelineFlagsRepairAndTerminal(t *testing.T) {
	store := memstore.New()
	events := memstore.NewEventStore()
	runID := newSandboxRun(t, store, nil)
	seedEvents(t, events, runID,
		event.TypePlanValidated,
		event.TypeEditApplied,
		event.TypeRepairStarted,
		event.TypeTerminal,
	)

	svc := NewReplayService(store, events)
	tl, err := svc.Timeline(context.Background(), runID)
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(tl.Events) != 4 {
		t.Fatalf("events = %d, want 4", len(tl.Events))
	}
	if !tl.Repaired || !tl.Terminal {
		t.Fatalf("flags = repaired:%v terminal:%v", tl.Repaired, tl.Terminal)
	}
	if tl.Run == nil || tl.Run.ID != runID {
		t.Fatalf("run = %+v", tl.Run)
	}
}

func TestTimelineUnknownRun(t *testing.T) {
	svc := NewReplayService(memstore.New(), memstore.NewEventStore())
	if _, err := svc.Timeline(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplayVersionRange(t *testing.T) {
	store := memstore.New()
	events := memstore.NewEventStore()
	runID := newSandboxRun(t, store, nil)
	seedEvents(t, events, runID,
		event.TypePlanValidated,
		event.TypeEditApplied,
		event.TypeCheckStarted,
		event.TypeCheckFinished,
		event.TypeTerminal,
	)

	svc := NewReplayService(store, events)

	all, err := svc.Replay(context.Background(), runID, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("all events = %d, want 5", len(all))
	}

	window, err := svc.Replay(context.Background(), runID, 2, 4)
	if err != nil {
		t.Fatalf("replay range: %v", err)
	}
	if len(window) != 3 || window[0].Version != 2 || window[2].Version != 4 {
		t.Fatalf("window = %+v", window)
	}

	tail, err := svc.Replay(context.Background(), runID, 4, 0)
	if err != nil {
		t.Fatalf("replay tail: %v", err)
	}
	if len(tail) != 2 {
		t.Fatalf("tail events = %d, want 2", len(tail))
	}
}
