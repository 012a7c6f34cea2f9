package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gossip-lsp/sightline/jsonrpc"
)

const instrumentationName = "github.com/gossip-lsp/sightline/middleware"

// Telemetry returns middleware that records request counts, failures and
// latency per method on instruments from mp.
func Telemetry(mp metric.MeterProvider) (Middleware, error) {
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("sightline.requests",
		metric.WithDescription("Number of JSON-RPC messages handled"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("sightline.requests.failed",
		metric.WithDescription("Number of JSON-RPC messages that returned an error"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("sightline.request.duration_seconds",
		metric.WithDescription("Handler latency in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
			start := time.Now()
			result, err := next(ctx, method, params)

			attrs := metric.WithAttributes(attribute.String("rpc.method", method))
			requests.Add(ctx, 1, attrs)
			latency.Record(ctx, time.Since(start).Seconds(), attrs)
			if err != nil {
				failures.Add(ctx, 1, attrs)
			}
			return result, err
		}
	}, nil
}
