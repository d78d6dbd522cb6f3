package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Span and metric attributes stay low cardinality: phase, relay backend,
// operation and status only. Job ids, requester ids and URLs go to logs.

// InstrumentedFunc represents a function that can be instrumented.
type InstrumentedFunc func(ctx context.Context) error

// InstrumentOperation wraps fn in a span tagged with component and operation.
func (t *Telemetry) InstrumentOperation(ctx context.Context, operationName, component string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	start := time.Now()
	ctx, span := t.tracer.Start(ctx, operationName)

	defer span.End()

	span.SetAttributes(
		attribute.String("component", component),
		attribute.String("operation", operationName),
	)

	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"

		span.SetAttributes(attribute.Bool("error", true))
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		attribute.String("status", status),
		attribute.Float64("duration_seconds", time.Since(start).Seconds()),
	)

	return err
}

// InstrumentDBOperation instruments database operations.
func (t *Telemetry) InstrumentDBOperation(ctx context.Context, operation string, fn InstrumentedFunc) error {
	if t == nil {
		return fn(ctx)
	}

	start := time.Now()
	err := t.InstrumentOperation(ctx, "db_"+operation, "database", fn)

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordDBOperation(operation, status, time.Since(start))

	return err
}

// InstrumentRelayOperation instruments calls into a relay backend.
func (t *Telemetry) InstrumentRelayOperation(ctx context.Context, relay, operation string, fn InstrumentedFunc) error {
	if t == nil || t.tracer == nil {
		return fn(ctx)
	}

	err := t.InstrumentOperation(ctx, "relay_"+operation, "relay", func(ctx context.Context) error {
		ctx, span := t.tracer.Start(ctx, "relay_"+operation)
		defer span.End()

		span.SetAttributes(
			attribute.String("relay.type", relay),
			attribute.String("relay.operation", operation),
		)

		return fn(ctx)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	t.RecordRelayOperation(relay, operation, status)

	return err
}

// PhaseFunc runs a transfer phase and reports its outcome and byte count.
type PhaseFunc func(ctx context.Context) (outcome string, bytes int64, err error)

// InstrumentPhase instruments one download or upload phase of a job.
func (t *Telemetry) InstrumentPhase(ctx context.Context, phase string, fn PhaseFunc) (string, int64, error) {
	if t == nil {
		return fn(ctx)
	}

	if t.transfersActive != nil {
		t.transfersActive.Add(ctx, 1)
		defer t.transfersActive.Add(ctx, -1)
	}

	var (
		outcome string
		n       int64
	)

	start := time.Now()
	err := t.InstrumentOperation(ctx, "phase_"+phase, "transfer", func(ctx context.Context) error {
		var err error
		outcome, n, err = fn(ctx)

		return err
	})

	t.RecordTransferBytes(ctx, phase, n)

	if t.transferLength != nil {
		t.transferLength.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("phase", phase), attribute.String("outcome", outcome)))
	}

	return outcome, n, err
}
