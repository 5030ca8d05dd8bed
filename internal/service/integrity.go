package service

import (
	"fmt"

	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
)

// IntegrityService recomputes plan hashes and enforces declared-path scope.
// It runs before any sandbox exists, so a tampered or stale plan is rejected
// with zero side effects.
type IntegrityService struct{}

// NewIntegrityService creates an IntegrityService.
func NewIntegrityService() *IntegrityService {
	return &IntegrityService{}
}

// Verify validates the plan's structure and checks the caller-supplied hash
// against an independent recomputation. It returns the computed hash. An
// empty claimed hash is a validation error: callers must assert what they
// think they are executing.
func (s *IntegrityService) Verify(p *plan.Plan, claimedHash string) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: plan is required", domain.ErrValidation)
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if claimedHash == "" {
		return "", fmt.Errorf("%w: plan hash is required", domain.ErrValidation)
	}
	computed := plan.Hash(p)
	if computed != claimedHash {
		return "", fmt.Errorf("%w: hash mismatch (claimed %s, computed %s)",
			domain.ErrPlanIntegrity, claimedHash, computed)
	}
	return computed, nil
}

// CheckScope rejects any file-edit step whose path the allowed predicate
// refuses. The repair gate runs proposed plans through it with the scope
// derived from the failure text.
func (s *IntegrityService) CheckScope(p *plan.Plan, allowed func(path string) bool) error {
	for _, step := range p.FileEdits() {
		if !allowed(step.Path) {
			return fmt.Errorf("%w: path %q outside allowed scope", domain.ErrPlanIntegrity, step.Path)
		}
	}
	return nil
}
