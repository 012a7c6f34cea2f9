package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// telemetry holds the providers handed to the server and the command
// executor. Providers are passed explicitly; nothing is installed globally.
type telemetry struct {
	tp       trace.TracerProvider
	mp       metric.MeterProvider
	shutdown func(context.Context) error
}

// newTelemetry returns no-op providers unless enabled. When enabled, spans
// are pretty-printed to stderr and metrics are collected in memory and
// logged once on shutdown.
func newTelemetry(enabled bool, logger *slog.Logger) (*telemetry, error) {
	if !enabled {
		return &telemetry{
			tp:       tracenoop.NewTracerProvider(),
			mp:       metricnoop.NewMeterProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", "sightline"),
		attribute.String("service.version", version),
	)

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	return &telemetry{
		tp: tp,
		mp: mp,
		shutdown: func(ctx context.Context) error {
			var rm metricdata.ResourceMetrics
			if err := reader.Collect(ctx, &rm); err == nil {
				logMetrics(logger, rm)
			}
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}

func logMetrics(logger *slog.Logger, rm metricdata.ResourceMetrics) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				logger.Info("metric", "name", m.Name, "total", total)
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				logger.Info("metric", "name", m.Name, "count", count, "sum", sum, "unit", m.Unit)
			}
		}
	}
}
