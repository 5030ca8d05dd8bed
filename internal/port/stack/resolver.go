// Package stack defines the check-command resolver port: given a project's
// file paths, which lint/test/run commands apply.
package stack

import "context"

// Commands holds the resolved verification commands. An empty string means
// that check kind is not configured and must be reported as such, never as
// a failure.
type Commands struct {
	Lint string `json:"lint,omitempty"`
	Test string `json:"test,omitempty"`
	Run  string `json:"run,omitempty"`
}

// Resolver resolves the configured or auto-detected check commands for a
// project from its file listing.
type Resolver interface {
	Resolve(ctx context.Context, projectID string, paths []string) (Commands, error)
}
