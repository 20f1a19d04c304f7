package openai

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/joseph-ayodele/calendar-converter/llm"

// Outcomes recorded on every exchange.
const (
	outcomeOK          = "ok"
	outcomeTimeout     = "timeout"
	outcomeCanceled    = "canceled"
	outcomeUnreachable = "unreachable"
	outcomeStatus      = "bad_status"
	outcomeMalformed   = "malformed"
)

type clientMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	probeCount      metric.Int64Counter
}

// newClientMetrics builds the instruments on mp; nil means the global provider.
func newClientMetrics(mp metric.MeterProvider) (*clientMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	requestCount, err := meter.Int64Counter(
		"llm.requests",
		metric.WithDescription("Extraction backend exchanges"),
	)
	if err != nil {
		return nil, err
	}
	requestDuration, err := meter.Float64Histogram(
		"llm.request.duration",
		metric.WithDescription("Extraction backend exchange duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	probeCount, err := meter.Int64Counter(
		"llm.probes",
		metric.WithDescription("Backend reachability probes"),
	)
	if err != nil {
		return nil, err
	}
	return &clientMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		probeCount:      probeCount,
	}, nil
}

func (m *clientMetrics) recordRequest(ctx context.Context, backend, model, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.backend", backend),
		attribute.String("llm.model", model),
		attribute.String("outcome", outcome),
	)
	ctx = context.WithoutCancel(ctx)
	m.requestCount.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (m *clientMetrics) recordProbe(ctx context.Context, backend string, reachable bool) {
	if m == nil {
		return
	}
	m.probeCount.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("llm.backend", backend),
		attribute.Bool("reachable", reachable),
	))
}
