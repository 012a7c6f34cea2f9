package sightline

import (
	"context"
	"fmt"

	"github.com/gossip-lsp/sightline/jsonrpc"
	mw "github.com/gossip-lsp/sightline/middleware"
	"github.com/gossip-lsp/sightline/transport"
)

// Serve runs the server until the connection closes or ctx is done. If no
// ServeOption is provided, stdio is used.
func Serve(ctx context.Context, s *Server, opts ...ServeOption) error {
	cfg := &serveConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.transport == nil {
		var err error
		cfg.transport, err = transport.Open(ctx, cfg.spec)
		if err != nil {
			return fmt.Errorf("creating transport %s: %w", cfg.spec, err)
		}
	}
	defer cfg.transport.Close()

	codec := jsonrpc.NewCodec(cfg.transport, cfg.transport)

	handler := jsonrpc.Handler(s.dispatch)
	notifHandler := s.dispatchNotification
	if len(s.middlewares) > 0 {
		chain := mw.Chain(s.middlewares...)
		handler = jsonrpc.Handler(chain(mw.Handler(handler)))

		wrappedNotif := chain(func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
			s.dispatchNotification(ctx, method, params)
			return nil, nil
		})
		notifHandler = func(ctx context.Context, method string, params jsonrpc.RawMessage) {
			_, _ = wrappedNotif(ctx, method, params)
		}
	}

	conn := jsonrpc.NewConn(codec, handler, notifHandler,
		jsonrpc.WithLogger(s.logger),
		jsonrpc.WithMaxConcurrency(s.workers),
	)
	s.mu.Lock()
	s.conn = conn
	s.client = newClientProxy(conn, s.logger)
	closers := s.closers
	s.mu.Unlock()

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		if s.configHolder != nil {
			s.configHolder.close()
		}
	}()

	// Unblock the reader on exit or cancellation.
	stop := context.AfterFunc(ctx, func() { cfg.transport.Close() })
	defer stop()
	go func() {
		<-conn.Done()
		cfg.transport.Close()
	}()

	s.logger.Info("sightline server starting",
		"name", s.name,
		"version", s.version,
	)

	if err := conn.Run(ctx); err != nil && !s.exited.Load() {
		return fmt.Errorf("server error: %w", err)
	}
	if s.exited.Load() && !s.shutdown.Load() {
		return ErrExitWithoutShutdown
	}
	return nil
}
