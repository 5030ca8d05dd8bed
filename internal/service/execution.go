package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/adapter/otel"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/domain"
	"github.com/gatehouse-io/gatehouse/internal/domain/event"
	"github.com/gatehouse-io/gatehouse/internal/domain/plan"
	"github.com/gatehouse-io/gatehouse/internal/domain/protect"
	"github.com/gatehouse-io/gatehouse/internal/domain/run"
	"github.com/gatehouse-io/gatehouse/internal/port/cache"
	"github.com/gatehouse-io/gatehouse/internal/port/database"
	"github.com/gatehouse-io/gatehouse/internal/port/eventstore"
	"github.com/gatehouse-io/gatehouse/internal/port/messagequeue"
)

// Broadcaster pushes run events to connected clients.
type Broadcaster interface {
	BroadcastRunEvent(ctx context.Context, ev *event.RunEvent)
}

// StackInvalidator drops cached check commands for a project. A promotion
// may land a manifest change, which stales the resolved commands.
type StackInvalidator interface {
	Invalidate(ctx context.Context, projectID string)
}

// ExecuteRequest is one plan execution submission.
type ExecuteRequest struct {
	ProjectID               string
	ActorID                 string
	Plan                    *plan.Plan
	PlanHash                string
	ConfirmedProtectedPaths []string
}

// ProtectedPathsError reports the protected paths the caller must confirm
// before the plan may execute. Raised before any side effect.
type ProtectedPathsError struct {
	Paths []string
}

func (e *ProtectedPathsError) Error() string {
	return fmt.Sprintf("protected paths require confirmation: %s", strings.Join(e.Paths, ", "))
}

func (e *ProtectedPathsError) Unwrap() error { return domain.ErrProtectedPath }

// Streamer drives one execution end to end: integrity guard, sandbox,
// apply, checks, gate, and the single bounded repair cycle. It emits run
// events in generation order and guarantees exactly one terminal event.
type Streamer struct {
	store       database.Store
	events      eventstore.Store
	hub         Broadcaster
	queue       messagequeue.Queue
	cache       cache.Cache
	metrics     *otel.Metrics
	pool        *RunPool
	integrity   *IntegrityService
	sandbox     *SandboxManager
	applier     *Applier
	checker     *CheckRunner
	gate        *Gate
	repairer    *RepairService
	invalidator StackInvalidator

	repairEnabled bool
	dedupEnabled  bool
	dedupTTL      time.Duration
}

// StreamerDeps bundles the streamer's collaborators. Hub, queue, cache,
// metrics, and repairer may be nil; the corresponding behavior degrades
// gracefully (no push, no audit fan-out, no dedup, no repair).
type StreamerDeps struct {
	Store       database.Store
	Events      eventstore.Store
	Hub         Broadcaster
	Queue       messagequeue.Queue
	Cache       cache.Cache
	Metrics     *otel.Metrics
	Pool        *RunPool
	Integrity   *IntegrityService
	Sandbox     *SandboxManager
	Applier     *Applier
	Checker     *CheckRunner
	Gate        *Gate
	Repairer    *RepairService
	Invalidator StackInvalidator
}

// NewStreamer creates a Streamer.
func NewStreamer(deps StreamerDeps, repairCfg config.Repair, cacheCfg config.Cache) *Streamer {
	return &Streamer{
		store:         deps.Store,
		events:        deps.Events,
		hub:           deps.Hub,
		queue:         deps.Queue,
		cache:         deps.Cache,
		metrics:       deps.Metrics,
		pool:          deps.Pool,
		integrity:     deps.Integrity,
		sandbox:       deps.Sandbox,
		applier:       deps.Applier,
		checker:       deps.Checker,
		gate:          deps.Gate,
		repairer:      deps.Repairer,
		invalidator:   deps.Invalidator,
		repairEnabled: repairCfg.Enabled && deps.Repairer != nil,
		dedupEnabled:  cacheCfg.DedupEnable && deps.Cache != nil,
		dedupTTL:      cacheCfg.ResultTTL,
	}
}

// Execute runs one plan to its terminal outcome. Pre-side-effect rejections
// (validation, integrity, protected paths, unknown project) return an error
// and no run exists; once a sandbox is created every path produces an
// Outcome and exactly one terminal event.
func (s *Streamer) Execute(ctx context.Context, req ExecuteRequest) (*run.Outcome, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if req.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", domain.ErrValidation)
	}

	ctx, span := otel.StartExecutionSpan(ctx, req.ProjectID, req.ActorID)
	defer span.End()

	hash, err := s.integrity.Verify(req.Plan, req.PlanHash)
	if err != nil {
		return nil, err
	}

	proj, err := s.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	if proj.SafeMode {
		pset := protect.NewSet(proj.ProtectedPatterns, req.ConfirmedProtectedPaths)
		if unconfirmed := pset.Unconfirmed(editPaths(req.Plan)); len(unconfirmed) > 0 {
			return nil, &ProtectedPathsError{Paths: unconfirmed}
		}
	}

	dedupKey := "result:" + req.ProjectID + ":" + hash
	if s.dedupEnabled {
		if data, ok, _ := s.cache.Get(ctx, dedupKey); ok {
			var cached run.Outcome
			if err := json.Unmarshal(data, &cached); err == nil {
				slog.Info("execution deduplicated", "project_id", req.ProjectID, "plan_hash", hash)
				return &cached, nil
			}
		}
	}

	release, err := s.pool.Acquire(ctx, req.ActorID, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("acquire run slot: %w", err)
	}
	defer release()

	em := &emitter{projectID: req.ProjectID, actorID: req.ActorID, events: s.events, hub: s.hub}
	// The stream must never be left open: if a panic unwinds past this
	// point after a sandbox was created, terminate it.
	defer func() {
		em.terminal(context.Background(), run.Outcome{
			Success:   false,
			ErrorCode: domain.CodeInfrastructure,
			Error:     "execution aborted",
		})
	}()

	outcome := s.run(ctx, em, req, hash)

	if s.dedupEnabled && outcome.ErrorCode != domain.CodeCancelled {
		if data, err := json.Marshal(outcome); err == nil {
			_ = s.cache.Set(ctx, dedupKey, data, s.dedupTTL)
		}
	}
	return outcome, nil
}

// run drives the execution FSM: first attempt, gate, optional single repair
// attempt, terminal. Every path out finalizes the active run and emits the
// terminal event.
func (s *Streamer) run(ctx context.Context, em *emitter, req ExecuteRequest, hash string) *run.Outcome {
	first := s.attempt(ctx, em, req.Plan, req.ProjectID, req.ActorID, run.SourceInteractiveEdit, nil, hash)
	if first.err != nil {
		return s.finish(ctx, em, s.abortOutcome(ctx, em, first))
	}

	if promote, _ := s.gate.Decide(first.checks); promote {
		return s.finish(ctx, em, s.promote(ctx, em, first, nil))
	}

	// First attempt failed. It is rejected regardless of what the repair
	// cycle does; a promoted repair is a different run.
	_, failedCheck, _ := s.gate.FirstFailure(first.checks)
	if err := s.sandbox.Reject(ctx, first.run.ID, domain.CodeChecksFailed, failedCheck.Stderr); err != nil {
		slog.Error("reject failed run", "run_id", first.run.ID, "error", err)
	}

	if !s.repairEnabled || ctx.Err() != nil {
		return s.finish(ctx, em, failureOutcome(first, domain.CodeChecksFailed, "verification checks failed"))
	}

	proposal, err := s.repairer.Propose(ctx, req.ProjectID, first.run.ID, failedCheck)
	if err != nil {
		code := domain.CodeRepairFailed
		if errors.Is(err, domain.ErrRepairRejected) {
			code = domain.CodeScopeViolation
		}
		return s.finish(ctx, em, failureOutcome(first, code, err.Error()))
	}

	em.emit(ctx, event.TypeRepairStarted, event.RepairStartedPayload{
		ErrorType:   string(proposal.Classification.ErrorType),
		ScopePaths:  proposal.Scope.Paths(),
		Fingerprint: proposal.Fingerprint,
	})
	if s.metrics != nil {
		s.metrics.RepairsTried.Add(ctx, 1)
	}
	s.publish(ctx, messagequeue.SubjectRunRepair, messagequeue.RepairAttemptPayload{
		RunID:       first.run.ID,
		ProjectID:   req.ProjectID,
		ErrorType:   string(proposal.Classification.ErrorType),
		Fingerprint: proposal.Fingerprint,
		StartedAt:   time.Now().UTC(),
	})

	// Second, fresh sandbox from the original project state. Exactly one
	// retry; its failure is terminal.
	meta := map[string]string{run.MetadataFailureFingerprint: proposal.Fingerprint}
	second := s.attempt(ctx, em, proposal.Plan, req.ProjectID, req.ActorID, run.SourceAutomatedRepair, meta, plan.Hash(proposal.Plan))
	if second.err != nil {
		o := s.abortOutcome(ctx, em, second)
		o.Retried = true
		o.FirstAttempt = first.report()
		return s.finish(ctx, em, o)
	}

	if promote, _ := s.gate.Decide(second.checks); promote {
		return s.finish(ctx, em, s.promote(ctx, em, second, first.report()))
	}

	if err := s.sandbox.Reject(ctx, second.run.ID, domain.CodeRepairFailed, "repair attempt failed verification"); err != nil {
		slog.Error("reject repair run", "run_id", second.run.ID, "error", err)
	}
	o := failureOutcome(second, domain.CodeRepairFailed, "repair attempt failed verification")
	o.Retried = true
	o.FirstAttempt = first.report()
	return s.finish(ctx, em, o)
}

// attemptResult carries one sandbox attempt's state through the FSM.
type attemptResult struct {
	run    *run.SandboxRun
	apply  *run.ApplyResult
	checks run.CheckSet
	err    error
}

func (a attemptResult) report() *run.AttemptReport {
	if a.run == nil {
		return nil
	}
	rep := &run.AttemptReport{RunID: a.run.ID, Checks: a.checks}
	if a.apply != nil {
		rep.Conflicts = a.apply.Conflicts
	}
	return rep
}

// attempt creates a sandbox, applies the plan's edits, and runs checks.
// A non-nil err means infrastructure trouble or cancellation, fatal to the
// execution.
func (s *Streamer) attempt(ctx context.Context, em *emitter, p *plan.Plan, projectID, actorID string, source run.Source, meta map[string]string, hash string) attemptResult {
	var res attemptResult

	r, err := s.sandbox.Create(ctx, projectID, actorID, source, meta)
	if err != nil {
		res.err = err
		return res
	}
	res.run = r
	em.setRun(r.ID)
	ctx, span := otel.StartAttemptSpan(ctx, r.ID, source == run.SourceAutomatedRepair)
	defer span.End()
	if s.metrics != nil {
		s.metrics.RunsStarted.Add(ctx, 1)
	}

	em.emit(ctx, event.TypePlanValidated, event.PlanValidatedPayload{
		PlanHash:  hash,
		StepCount: len(p.Steps),
	})

	res.apply, err = s.applier.Apply(ctx, r.ID, p.Steps)
	if err != nil {
		res.err = err
		return res
	}
	for _, path := range res.apply.FilesEdited {
		em.emit(ctx, event.TypeEditApplied, event.EditAppliedPayload{Path: path})
	}
	for _, c := range res.apply.Conflicts {
		em.emit(ctx, event.TypeEditConflicted, event.EditConflictedPayload{Path: c.Path, Message: c.Message})
	}
	if err := s.sandbox.Transition(ctx, r.ID, run.StatusEdited); err != nil {
		res.err = err
		return res
	}

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	res.checks, err = s.checker.Run(ctx, r, p.Commands(), func(t event.Type, payload any) {
		em.emit(ctx, t, payload)
	})
	if err != nil {
		res.err = err
		return res
	}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	if err := s.sandbox.SetChecks(ctx, r.ID, res.checks); err != nil {
		res.err = err
		return res
	}
	if err := s.sandbox.Transition(ctx, r.ID, run.StatusChecked); err != nil {
		res.err = err
		return res
	}
	return res
}

// promote copies the attempt's edits into canonical storage and builds the
// success outcome.
func (s *Streamer) promote(ctx context.Context, em *emitter, a attemptResult, firstAttempt *run.AttemptReport) *run.Outcome {
	promoted, err := s.sandbox.Promote(ctx, a.run.ID)
	if err != nil {
		a.err = err
		o := s.abortOutcome(ctx, em, a)
		o.Retried = firstAttempt != nil
		o.FirstAttempt = firstAttempt
		return o
	}
	// A promoted plan may have landed a manifest change; cached check
	// commands for the project are stale until re-resolved.
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, em.projectID)
	}
	conflicts := append([]run.Conflict{}, a.apply.Conflicts...)
	conflicts = append(conflicts, promoted.Conflicts...)
	return &run.Outcome{
		RunID:        a.run.ID,
		Success:      true,
		FilesEdited:  promoted.FilesEdited,
		Conflicts:    conflicts,
		Checks:       a.checks,
		Retried:      firstAttempt != nil,
		FirstAttempt: firstAttempt,
	}
}

// abortOutcome finalizes an attempt that died of infrastructure trouble or
// cancellation and converts it to a terminal outcome.
func (s *Streamer) abortOutcome(ctx context.Context, em *emitter, a attemptResult) *run.Outcome {
	code := domain.CodeInfrastructure
	msg := "infrastructure failure"
	if a.err != nil {
		msg = a.err.Error()
	}
	if errors.Is(a.err, context.Canceled) || errors.Is(a.err, context.DeadlineExceeded) || ctx.Err() != nil {
		code = domain.CodeCancelled
		msg = "execution cancelled"
	}

	o := &run.Outcome{Success: false, ErrorCode: code, Error: msg}
	if a.run != nil {
		o.RunID = a.run.ID
		o.Checks = a.checks
		if a.apply != nil {
			o.Conflicts = a.apply.Conflicts
		}
		// Finalize with a background context: the request context may
		// already be dead.
		if err := s.sandbox.Reject(context.Background(), a.run.ID, code, msg); err != nil {
			slog.Error("reject aborted run", "run_id", a.run.ID, "error", err)
		}
	}
	return o
}

// finish emits the terminal event, fans the outcome out to the audit queue,
// and records metrics. Exactly one terminal event is emitted per execution;
// later calls are no-ops at the emitter.
func (s *Streamer) finish(ctx context.Context, em *emitter, o *run.Outcome) *run.Outcome {
	em.terminal(ctx, *o)

	subject := messagequeue.SubjectRunRejected
	status := run.StatusRejected
	if o.Success {
		subject = messagequeue.SubjectRunPromoted
		status = run.StatusPromoted
	}
	s.publish(ctx, subject, messagequeue.RunOutcomePayload{
		RunID:       o.RunID,
		ProjectID:   em.projectID,
		ActorID:     em.actorID,
		Status:      string(status),
		ErrorCode:   o.ErrorCode,
		FilesEdited: len(o.FilesEdited),
		Conflicts:   len(o.Conflicts),
		Retried:     o.Retried,
		FinishedAt:  time.Now().UTC(),
	})

	if s.metrics != nil {
		if o.Success {
			s.metrics.RunsPromoted.Add(ctx, 1)
		} else {
			s.metrics.RunsRejected.Add(ctx, 1)
		}
	}
	slog.Info("execution finished", "run_id", o.RunID, "success", o.Success,
		"error_code", o.ErrorCode, "retried", o.Retried)
	return o
}

func (s *Streamer) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal audit payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("audit publish failed", "subject", subject, "error", err)
	}
}

// failureOutcome builds the terminal outcome for a gated rejection.
func failureOutcome(a attemptResult, code, msg string) *run.Outcome {
	o := &run.Outcome{
		Success:   false,
		ErrorCode: code,
		Error:     msg,
		Checks:    a.checks,
	}
	if a.run != nil {
		o.RunID = a.run.ID
	}
	if a.apply != nil {
		o.Conflicts = a.apply.Conflicts
	}
	return o
}

// editPaths returns the distinct file-edit paths in plan order.
func editPaths(p *plan.Plan) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, step := range p.FileEdits() {
		if _, ok := seen[step.Path]; ok {
			continue
		}
		seen[step.Path] = struct{}{}
		paths = append(paths, step.Path)
	}
	return paths
}

// emitter assigns per-execution version numbers to run events and delivers
// them to the event store and the push hub in generation order.
type emitter struct {
	mu           sync.Mutex
	version      int
	runID        string
	projectID    string
	actorID      string
	terminalSent bool
	events       eventstore.Store
	hub          Broadcaster
}

func (e *emitter) setRun(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runID = id
}

func (e *emitter) emit(ctx context.Context, t event.Type, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deliver(ctx, t, payload)
}

// terminal emits the run.terminal event exactly once.
func (e *emitter) terminal(ctx context.Context, o run.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminalSent || e.runID == "" {
		return
	}
	e.terminalSent = true
	e.deliver(ctx, event.TypeTerminal, event.TerminalPayload{Outcome: o})
}

func (e *emitter) deliver(ctx context.Context, t event.Type, payload any) {
	if e.runID == "" {
		return
	}
	e.version++
	ev, err := event.New(e.runID, e.projectID, t, e.version, payload)
	if err != nil {
		slog.Error("build run event", "type", t, "error", err)
		return
	}
	if e.events != nil {
		if err := e.events.Append(ctx, ev); err != nil {
			slog.Warn("append run event", "type", t, "error", err)
		}
	}
	if e.hub != nil {
		e.hub.BroadcastRunEvent(ctx, ev)
	}
}
