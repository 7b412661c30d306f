// Package observability holds the OpenTelemetry instruments shared by the
// services.
package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"promptlab/pkg/models"
)

// InstrumentationName names the meter and tracer used across the module.
const InstrumentationName = "promptlab"

// Metrics records workflow step operations.
type Metrics struct {
	stepOps   metric.Int64Counter
	conflicts metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates the instruments on the given meter. A nil meter uses
// the global provider, which is a no-op until one is installed.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	stepOps, err := meter.Int64Counter("promptlab.workflow.step_operations",
		metric.WithDescription("Workflow step mutations by operation and outcome"))
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("promptlab.workflow.conflicts",
		metric.WithDescription("Step mutations rejected with a conflict"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("promptlab.workflow.step_operation.duration",
		metric.WithDescription("Duration of step mutations including the lock wait"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{stepOps: stepOps, conflicts: conflicts, duration: duration}, nil
}

// RecordStepOp counts one step operation and its outcome.
func (m *Metrics) RecordStepOp(ctx context.Context, op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", Outcome(err)),
	)
	m.stepOps.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	if errors.Is(err, models.ErrConflict) {
		m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// Outcome classifies an error for metric attributes.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
