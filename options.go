package sightline

import (
	"log/slog"

	"github.com/gossip-lsp/sightline/middleware"
	"github.com/gossip-lsp/sightline/transport"
	"github.com/gossip-lsp/sightline/treesitter"
)

// Option configures a Server during construction.
type Option func(*Server)

// ServeOption configures how the server is served.
type ServeOption func(*serveConfig)

type serveConfig struct {
	transport transport.Transport
	spec      transport.Spec
}

// WithStdio configures the server to communicate over stdin/stdout.
func WithStdio() ServeOption {
	return func(cfg *serveConfig) {
		cfg.transport = transport.Stdio()
	}
}

// WithTransport configures the server to use a specific transport.
func WithTransport(t transport.Transport) ServeOption {
	return func(cfg *serveConfig) {
		cfg.transport = t
	}
}

// WithSpec makes Serve open the transport spec describes, waiting for the
// first client on listening transports.
func WithSpec(spec transport.Spec) ServeOption {
	return func(cfg *serveConfig) {
		cfg.spec = spec
	}
}

// WithLogger sets a custom slog logger on the server.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithTreeSitter enables incremental tree-sitter parsing of open documents.
func WithTreeSitter(cfg treesitter.Config) Option {
	return func(s *Server) {
		s.tsManager = treesitter.NewManager(cfg, s.docStore)
	}
}

// WithMiddleware adds middleware to the server's dispatch chain.
// Middleware is applied in order: the first middleware is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Server) {
		s.middlewares = append(s.middlewares, mws...)
	}
}

// WithWorkers bounds how many requests are handled at once.
func WithWorkers(n int) Option {
	return func(s *Server) {
		s.workers = n
	}
}
