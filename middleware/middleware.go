// Package middleware provides composable middleware for sightline's JSON-RPC
// dispatch layer: logging, panic recovery, metrics and tracing around every
// handler.
package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/gossip-lsp/sightline/jsonrpc"
)

// Handler processes a JSON-RPC method call and returns a result.
type Handler func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error)

// Middleware wraps a Handler to add cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain composes mws into one Middleware whose first element is outermost.
// Nil entries are skipped.
func Chain(mws ...Middleware) Middleware {
	return func(h Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				h = mws[i](h)
			}
		}
		return h
	}
}

type requestIDKey struct{}

// RequestID returns the id the chain assigned to the current request, or ""
// outside a chain.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// withRequestID tags ctx with a fresh id unless an outer middleware already
// did, so every layer of one request logs the same id.
func withRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, requestIDKey{}, id), id
}
