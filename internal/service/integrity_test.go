package service

import (
	"errors"
	"testing"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
)

func TestVerifyAcceptsMatchingHash(t *testing.T) {
	svc := NewIntegrityService()
	p := &plan.Plan{Steps: []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "main.go", NewContent: "x"},
	}}

	hash, err := svc.Verify(p, plan.Hash(p))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if hash != plan.Hash(p) {
		t.Fatalf("returned hash %q does not match recomputation", hash)
	}
}

func TestVerifyRejectsMissingHash(t *testing.T) {
	svc := NewIntegrityService()
	p := &plan.Plan{Steps: []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "main.go", NewContent: "x"},
	}}

	if _, err := svc.Verify(p, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestVerifyRejectsNilPlan(t *testing.T) {
	svc := NewIntegrityService()
	if _, err := svc.Verify(nil, "abc"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestVerifyRejectsInvalidPlan(t *testing.T) {
	svc := NewIntegrityService()
	if _, err := svc.Verify(&plan.Plan{}, "abc"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestVerifyRejectsTamperedPlan(t *testing.T) {
	svc := NewIntegrityService()
	p := &plan.Plan{Steps: []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "main.go", NewContent: "x"},
	}}
	claimed := plan.Hash(p)

	// Mutate the plan after the hash was taken.
	p.Steps[0].NewContent = "something else"

	if _, err := svc.Verify(p, claimed); !errors.Is(err, domain.ErrPlanIntegrity) {
		t.Fatalf("expected ErrPlanIntegrity, got %v", err)
	}
}

func TestVerifyIgnoresDescriptions(t *testing.T) {
	svc := NewIntegrityService()
	p := &plan.Plan{Steps: []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "main.go", NewContent: "x"},
	}}
	claimed := plan.Hash(p)

	// Descriptions are advisory and excluded from the canonical form.
	p.Summary = "retitled"
	p.Steps[0].Description = "annotated afterwards"

	if _, err := svc.Verify(p, claimed); err != nil {
		t.Fatalf("Verify failed after description change: %v", err)
	}
}

func TestCheckScope(t *testing.T) {
	svc := NewIntegrityService()
	p := &plan.Plan{Steps: []plan.Step{
		{Type: plan.StepTypeFileEdit, Path: "a.go", NewContent: "x"},
		{Type: plan.StepTypeFileEdit, Path: "b.go", NewContent: "y"},
	}}

	inSet := func(paths ...string) func(string) bool {
		set := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			set[p] = struct{}{}
		}
		return func(path string) bool {
			_, ok := set[path]
			return ok
		}
	}

	if err := svc.CheckScope(p, inSet("a.go", "b.go")); err != nil {
		t.Fatalf("in-scope edits rejected: %v", err)
	}
	if err := svc.CheckScope(p, inSet("a.go")); !errors.Is(err, domain.ErrPlanIntegrity) {
		t.Fatalf("expected ErrPlanIntegrity for edit outside scope, got %v", err)
	}
}
