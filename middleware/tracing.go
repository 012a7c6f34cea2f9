package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gossip-lsp/sightline/jsonrpc"
)

// Tracing returns middleware that wraps each request in a span named after
// the LSP method.
func Tracing(tp trace.TracerProvider) Middleware {
	tracer := tp.Tracer(instrumentationName)
	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
			ctx, id := withRequestID(ctx)
			ctx, span := tracer.Start(ctx, method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("rpc.method", method),
					attribute.String("rpc.request_id", id),
				),
			)
			defer span.End()

			result, err := next(ctx, method, params)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return result, err
		}
	}
}
