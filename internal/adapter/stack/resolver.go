// Package stack implements the check-command resolver: manifest sniffing
// over a project's file listing, with explicit config overrides and a
// cached result per project.
package stack

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/port/cache"
	"github.com/gatehouse-io/gatehouse/internal/port/stack"
)

// manifestCommands maps a manifest filename to the default check commands
// for its stack. First manifest found in the listing wins.
var manifestCommands = []struct {
	Manifest string
	Commands stack.Commands
}{
	{"go.mod", stack.Commands{
		Lint: "go vet ./...",
		Test: "go test ./...",
		Run:  "go build ./...",
	}},
	{"package.json", stack.Commands{
		Lint: "npm run lint --if-present",
		Test: "npm test --silent",
		Run:  "npm run build --if-present",
	}},
	{"Cargo.toml", stack.Commands{
		Lint: "cargo clippy --no-deps -q",
		Test: "cargo test -q",
		Run:  "cargo build -q",
	}},
	{"pyproject.toml", stack.Commands{
		Lint: "ruff check .",
		Test: "pytest -q",
	}},
	{"requirements.txt", stack.Commands{
		Test: "pytest -q",
	}},
	{"Makefile", stack.Commands{
		Test: "make test",
	}},
}

// Resolver resolves check commands from a project's file listing.
type Resolver struct {
	overrides stack.Commands
	cache     cache.Cache
	ttl       time.Duration
}

// NewResolver creates a Resolver. Non-empty fields of cfg override
// detection per kind. cache may be nil.
func NewResolver(cfg config.Checks, c cache.Cache, ttl time.Duration) *Resolver {
	return &Resolver{
		overrides: stack.Commands{
			Lint: cfg.LintCommand,
			Test: cfg.TestCommand,
			Run:  cfg.RunCommand,
		},
		cache: c,
		ttl:   ttl,
	}
}

// Resolve returns the configured or auto-detected commands for a project.
// An all-empty result means no check is configured, which callers report
// as not_configured rather than failure.
func (r *Resolver) Resolve(ctx context.Context, projectID string, paths []string) (stack.Commands, error) {
	key := "stack:" + projectID
	if r.cache != nil {
		if data, ok, _ := r.cache.Get(ctx, key); ok {
			var cmds stack.Commands
			if err := json.Unmarshal(data, &cmds); err == nil {
				return cmds, nil
			}
		}
	}

	cmds := r.detect(paths)
	cmds = overlay(cmds, r.overrides)

	if r.cache != nil {
		if data, err := json.Marshal(cmds); err == nil {
			if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
				slog.Debug("stack cache set failed", "project_id", projectID, "error", err)
			}
		}
	}
	return cmds, nil
}

// Invalidate drops the cached commands for a project. Called after a
// promotion lands a manifest change.
func (r *Resolver) Invalidate(ctx context.Context, projectID string) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, "stack:"+projectID)
	}
}

func (r *Resolver) detect(paths []string) stack.Commands {
	names := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		names[path.Base(p)] = struct{}{}
	}
	for _, m := range manifestCommands {
		if _, ok := names[m.Manifest]; ok {
			return m.Commands
		}
	}
	return stack.Commands{}
}

func overlay(base, over stack.Commands) stack.Commands {
	if over.Lint != "" {
		base.Lint = over.Lint
	}
	if over.Test != "" {
		base.Test = over.Test
	}
	if over.Run != "" {
		base.Run = over.Run
	}
	return base
}
