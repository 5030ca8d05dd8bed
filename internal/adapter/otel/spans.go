package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gatehouse"

// StartExecutionSpan starts a span covering one plan execution, both
// attempts included.
func StartExecutionSpan(ctx context.Context, projectID, actorID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execution",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("actor.id", actorID),
		),
	)
}

// StartAttemptSpan starts a span for one sandbox attempt.
func StartAttemptSpan(ctx context.Context, runID string, repairAttempt bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "attempt",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Bool("attempt.repair", repairAttempt),
		),
	)
}

// StartCheckSpan starts a span for one verification check.
func StartCheckSpan(ctx context.Context, runID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "check",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("check.kind", kind),
		),
	)
}
