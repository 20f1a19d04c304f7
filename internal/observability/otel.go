// Package observability installs the process-wide OpenTelemetry meter provider.
package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/joseph-ayodele/calendar-converter/internal/common"
)

// Setup installs a MeterProvider as the otel global. Metrics are pushed over
// OTLP/gRPC when an endpoint is configured; extra readers are attached as-is.
// The returned func flushes and stops the provider.
func Setup(ctx context.Context, cfg common.MetricsConfig, version string, logger *slog.Logger, extra ...sdkmetric.Reader) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
		logger.Info("observability.metrics.otlp", "endpoint", cfg.OTLPEndpoint, "interval", interval.String())
	}
	for _, r := range extra {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}
