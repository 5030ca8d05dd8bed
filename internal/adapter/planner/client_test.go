package planner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	adplanner "github.com/gatehouse-io/gatehouse/internal/adapter/planner"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	pport "github.com/gatehouse-io/gatehouse/internal/port/planner"
	"github.com/gatehouse-io/gatehouse/internal/resilience"
)

func TestProposeRepair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/repairs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("unexpected auth: %q", auth)
		}

		var req pport.RepairRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Command != "go test ./..." {
			t.Fatalf("unexpected command: %q", req.Command)
		}

		resp := map[string]plan.Plan{
			"plan": {
				Summary: "add missing import",
				Steps: []plan.Step{
					{Type: plan.StepTypeFileEdit, Path: "main.go", NewContent: "package main\n"},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := adplanner.NewClient(srv.URL, "test-key", 5*time.Second)
	p, err := client.ProposeRepair(context.Background(), pport.RepairRequest{
		ProjectID: "p1",
		Command:   "go test ./...",
		ExitCode:  1,
	})
	if err != nil {
		t.Fatalf("ProposeRepair failed: %v", err)
	}
	if len(p.Steps) != 1 || p.Steps[0].Path != "main.go" {
		t.Fatalf("unexpected plan: %+v", p)
	}
}

func TestProposeRepair_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"no fix available"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := adplanner.NewClient(srv.URL, "", time.Second)
	if _, err := client.ProposeRepair(context.Background(), pport.RepairRequest{}); err == nil {
		t.Fatal("expected error for 4xx response")
	}
}

func TestProposeRepair_BreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := adplanner.NewClient(srv.URL, "", time.Second)
	b := resilience.NewBreaker(2, time.Minute)
	client.SetBreaker(b)

	ctx := context.Background()
	for range 3 {
		_, _ = client.ProposeRepair(ctx, pport.RepairRequest{})
	}
	if b.State() != resilience.StateOpen {
		t.Fatalf("expected open breaker, got %v", b.State())
	}
}
