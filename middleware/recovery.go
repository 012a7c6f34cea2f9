package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/gossip-lsp/sightline/jsonrpc"
)

// Recovery turns a handler panic into an internal error response and logs
// the stack. Place it innermost so outer layers see the error.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, method string, params jsonrpc.RawMessage) (result interface{}, err error) {
			ctx, id := withRequestID(ctx)
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered in handler",
						"method", method,
						"request_id", id,
						"panic", fmt.Sprint(r),
						"stack", string(debug.Stack()),
					)
					result = nil
					err = &jsonrpc.Error{
						Code:    jsonrpc.CodeInternalError,
						Message: fmt.Sprintf("internal error: %v", r),
					}
				}
			}()
			return next(ctx, method, params)
		}
	}
}
