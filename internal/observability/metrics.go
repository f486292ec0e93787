package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OTel metric instruments for conformance runs.
type Metrics struct {
	CaseCount     metric.Int64Counter
	CaseDuration  metric.Float64Histogram
	DiffEntries   metric.Int64Counter
	Fragments     metric.Int64Counter
	ActivityCalls metric.Int64Counter
}

// NewMetrics creates the conformance metric instruments on the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.GetMeterProvider())
}

// NewMetricsFrom creates the instruments on mp.
func NewMetricsFrom(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("compatcheck")

	caseCount, err := meter.Int64Counter("compat.case.count",
		metric.WithDescription("Number of conformance cases run, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	caseDuration, err := meter.Float64Histogram("compat.case.duration_seconds",
		metric.WithDescription("Wall time of one conformance case including both collaborator calls"),
	)
	if err != nil {
		return nil, err
	}

	diffEntries, err := meter.Int64Counter("compat.diff.entries",
		metric.WithDescription("Unclaimed diff entries left after exclusion, by category"),
	)
	if err != nil {
		return nil, err
	}

	fragments, err := meter.Int64Counter("compat.stream.fragments",
		metric.WithDescription("Stream fragments aggregated, by side"),
	)
	if err != nil {
		return nil, err
	}

	activityCalls, err := meter.Int64Counter("compat.activity.calls",
		metric.WithDescription("Number of activity invocations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		CaseCount:     caseCount,
		CaseDuration:  caseDuration,
		DiffEntries:   diffEntries,
		Fragments:     fragments,
		ActivityCalls: activityCalls,
	}, nil
}

// RecordCase records a finished case.
func (m *Metrics) RecordCase(ctx context.Context, name, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("case", name),
		attribute.String("outcome", outcome),
	)
	m.CaseCount.Add(ctx, 1, attrs)
	m.CaseDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordDiffEntries records the remaining entry count per category.
func (m *Metrics) RecordDiffEntries(ctx context.Context, name string, counts map[string]int) {
	for category, n := range counts {
		m.DiffEntries.Add(ctx, int64(n),
			metric.WithAttributes(
				attribute.String("case", name),
				attribute.String("category", category),
			),
		)
	}
}

// RecordFragments records the number of fragments aggregated for one side.
func (m *Metrics) RecordFragments(ctx context.Context, side string, n int) {
	m.Fragments.Add(ctx, int64(n),
		metric.WithAttributes(attribute.String("side", side)),
	)
}

// RecordActivity records an activity invocation.
func (m *Metrics) RecordActivity(ctx context.Context, name string) {
	m.ActivityCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("activity", name)),
	)
}
