package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gatehouse"

// Metrics holds all Gatehouse metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsPromoted  metric.Int64Counter
	RunsRejected  metric.Int64Counter
	RepairsTried  metric.Int64Counter
	CheckDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("gatehouse.runs.started",
		metric.WithDescription("Number of sandbox runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsPromoted, err = meter.Int64Counter("gatehouse.runs.promoted",
		metric.WithDescription("Number of runs promoted to canonical storage"))
	if err != nil {
		return nil, err
	}

	m.RunsRejected, err = meter.Int64Counter("gatehouse.runs.rejected",
		metric.WithDescription("Number of runs rejected"))
	if err != nil {
		return nil, err
	}

	m.RepairsTried, err = meter.Int64Counter("gatehouse.repairs.tried",
		metric.WithDescription("Number of automated repair attempts"))
	if err != nil {
		return nil, err
	}

	m.CheckDuration, err = meter.Float64Histogram("gatehouse.check.duration_seconds",
		metric.WithDescription("Verification check duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordCheckDuration records one check execution's duration, tagged by kind.
func (m *Metrics) RecordCheckDuration(ctx context.Context, kind string, d time.Duration) {
	m.CheckDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("check.kind", kind)))
}
