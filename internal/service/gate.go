package service

import (
	"fmt"
	"strings"

	"github.com/gatehouse-io/gatehouse/internal/domain/run"
)

// Gate decides promote versus reject from check outcomes. Promote iff no
// check failed; unconfigured and skipped checks never block promotion.
type Gate struct{}

// NewGate creates a Gate.
func NewGate() *Gate {
	return &Gate{}
}

// Decide returns whether the run may be promoted and, when not, a
// human-readable reason listing the failed check kinds.
func (g *Gate) Decide(checks run.CheckSet) (promote bool, reason string) {
	failed := checks.FailedKinds()
	if len(failed) == 0 {
		return true, ""
	}
	kinds := make([]string, len(failed))
	for i, k := range failed {
		kinds[i] = string(k)
	}
	return false, fmt.Sprintf("checks failed: %s", strings.Join(kinds, ", "))
}

// FirstFailure returns the first failed check in reporting order, for the
// repair orchestrator to classify.
func (g *Gate) FirstFailure(checks run.CheckSet) (run.CheckKind, run.CheckResult, bool) {
	for _, k := range run.Kinds() {
		if r := checks.Get(k); r.Status == run.CheckFailed {
			return k, r, true
		}
	}
	return "", run.CheckResult{}, false
}
