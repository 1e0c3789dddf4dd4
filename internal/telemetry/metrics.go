package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricAssignmentsAccepted = "dutyplan.assignments.accepted"
	MetricAssignmentsRejected = "dutyplan.assignments.rejected"
	MetricAssignmentLockWait  = "dutyplan.assignment.lock_wait"
	MetricBlocksValidated     = "dutyplan.blocks.validated"
	MetricViolations          = "dutyplan.violations"
)

// AssignmentMetrics records assignment outcomes. A nil *AssignmentMetrics
// records nothing.
type AssignmentMetrics struct {
	accepted metric.Int64Counter
	rejected metric.Int64Counter
	lockWait metric.Float64Histogram
}

// NewAssignmentMetrics creates the assignment instruments on meter.
func NewAssignmentMetrics(meter metric.Meter) (*AssignmentMetrics, error) {
	accepted, err := meter.Int64Counter(MetricAssignmentsAccepted,
		metric.WithDescription("Assignments committed"))
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter(MetricAssignmentsRejected,
		metric.WithDescription("Assignments rejected, by reason"))
	if err != nil {
		return nil, err
	}
	lockWait, err := meter.Float64Histogram(MetricAssignmentLockWait,
		metric.WithDescription("Time spent waiting for the per-resource assignment lock"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &AssignmentMetrics{accepted: accepted, rejected: rejected, lockWait: lockWait}, nil
}

// Accepted counts a committed assignment.
func (m *AssignmentMetrics) Accepted(ctx context.Context, resourceKind string) {
	if m == nil {
		return
	}
	m.accepted.Add(ctx, 1, metric.WithAttributes(attribute.String("resource_kind", resourceKind)))
}

// Rejected counts a rejected assignment.
func (m *AssignmentMetrics) Rejected(ctx context.Context, resourceKind, reason string) {
	if m == nil {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_kind", resourceKind),
		attribute.String("reason", reason),
	))
}

// LockWait records how long an attempt waited for its lock.
func (m *AssignmentMetrics) LockWait(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Record(ctx, d.Seconds())
}

// ValidationMetrics records batch block validation results. A nil
// *ValidationMetrics records nothing.
type ValidationMetrics struct {
	blocks     metric.Int64Counter
	violations metric.Int64Counter
}

// NewValidationMetrics creates the validation instruments on meter.
func NewValidationMetrics(meter metric.Meter) (*ValidationMetrics, error) {
	blocks, err := meter.Int64Counter(MetricBlocksValidated,
		metric.WithDescription("Blocks validated, by outcome"))
	if err != nil {
		return nil, err
	}
	violations, err := meter.Int64Counter(MetricViolations,
		metric.WithDescription("Violations found, by kind"))
	if err != nil {
		return nil, err
	}
	return &ValidationMetrics{blocks: blocks, violations: violations}, nil
}

// Block counts one validated block with its outcome (valid, invalid, error).
func (m *ValidationMetrics) Block(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.blocks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Violations counts n violations of a kind.
func (m *ValidationMetrics) Violations(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.violations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
