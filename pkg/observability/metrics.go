package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for action metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeDiscarded = "discarded"
	OutcomeRejected  = "rejected"
)

// Metrics holds the instruments recorded by the analysis session.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActionCalls   metric.Int64Counter
	ActionLatency metric.Float64Histogram
}

// NewMetrics creates the instruments on provider. A nil provider means the
// global one, which records nothing until InitTelemetry installs the SDK.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter("esginsight")

	calls, err := meter.Int64Counter("esginsight.action.calls",
		metric.WithDescription("Analysis action attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("esginsight.action.latency_seconds",
		metric.WithDescription("Backend round-trip time per analysis action"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{ActionCalls: calls, ActionLatency: latency}, nil
}

// RecordAction records one action attempt. Rejected attempts have no latency.
func (m *Metrics) RecordAction(ctx context.Context, action, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	)
	m.ActionCalls.Add(ctx, 1, attrs)
	if outcome != OutcomeRejected {
		m.ActionLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
}
