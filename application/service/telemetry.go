package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	"github.com/helixml/filegraph/domain/review"
)

// InstrumentationName identifies filegraph spans and metrics.
const InstrumentationName = "github.com/helixml/filegraph"

// Telemetry holds the tracer and metric instruments shared by the services.
type Telemetry struct {
	tracer    trace.Tracer
	decisions metric.Int64Counter
	merges    metric.Int64Counter
	reviews   metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewTelemetry creates the instruments. Nil providers fall back to the otel
// globals, which are no-ops until the host installs an SDK.
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	t := &Telemetry{tracer: tp.Tracer(InstrumentationName)}
	var err error

	t.decisions, err = meter.Int64Counter(
		"filegraph.decisions",
		metric.WithDescription("Decisions applied to the graph"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decisions counter: %w", err)
	}

	t.merges, err = meter.Int64Counter(
		"filegraph.merges",
		metric.WithDescription("Entity merges performed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create merges counter: %w", err)
	}

	t.reviews, err = meter.Int64Counter(
		"filegraph.reviews_queued",
		metric.WithDescription("Merge requests parked for review"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reviews counter: %w", err)
	}

	t.conflicts, err = meter.Int64Counter(
		"filegraph.conflicts",
		metric.WithDescription("Writes that lost every retry to concurrent writers"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create conflicts counter: %w", err)
	}

	return t, nil
}

// start opens a span named filegraph.<op>.
func (t *Telemetry) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "filegraph."+op, trace.WithAttributes(attrs...))
}

// finish records the outcome on the span and ends it.
func (t *Telemetry) finish(ctx context.Context, span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	if errors.Is(err, graph.ErrConcurrencyConflict) {
		t.conflicts.Add(ctx, 1)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (t *Telemetry) applied(ctx context.Context, span trace.Span, a merge.Applied) {
	span.SetAttributes(
		attribute.String("decision", string(a.Kind)),
		attribute.Bool("created", a.Created),
	)
	t.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(a.Kind))))
	if a.Kind == merge.KindMerge && !a.Replayed {
		t.merges.Add(ctx, 1)
	}
}

func (t *Telemetry) queued(ctx context.Context, kind review.Kind) {
	t.reviews.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
