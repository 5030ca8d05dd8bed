// Package domain provides shared domain-level sentinel errors and the
// stable machine-readable failure codes carried by terminal run events.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a malformed request.
var ErrValidation = errors.New("invalid request")

// ErrPlanIntegrity indicates a plan hash mismatch or an edit path outside
// the plan's declared scope. Raised before any side effect.
var ErrPlanIntegrity = errors.New("plan integrity violation")

// ErrProtectedPath indicates the plan touches protected paths the caller
// has not confirmed. Raised before any side effect.
var ErrProtectedPath = errors.New("protected path requires confirmation")

// ErrRepairRejected indicates an automatic repair violated the repair scope
// or error-class policy and was not attempted.
var ErrRepairRejected = errors.New("repair rejected")

// ErrInfrastructure indicates a sandbox create/materialize/promote failure.
// Fatal to the in-flight run; never silently swallowed.
var ErrInfrastructure = errors.New("infrastructure failure")

// Stable machine codes attached to terminal failures. Clients match on
// these, never on message text.
const (
	CodeValidation     = "validation"
	CodePlanIntegrity  = "plan_integrity"
	CodeProtectedPath  = "protected_path"
	CodeChecksFailed   = "checks_failed"
	CodeScopeViolation = "scope_violation"
	CodeRepairFailed   = "repair_failed"
	CodeInfrastructure = "infrastructure"
	CodeCancelled      = "cancelled"
)
