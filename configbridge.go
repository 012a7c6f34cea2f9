package sightline

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gossip-lsp/sightline/config"
)

// configHolder hides the config type parameter from the server.
type configHolder interface {
	start(logger *slog.Logger, rootDir string, overlay json.RawMessage) error
	setOverlay(settings json.RawMessage) error
	close()
}

type typedConfigHolder[T any] struct {
	store    *config.Store[T]
	filename string
	defaults *T

	mu      sync.Mutex
	bridge  *config.WorkspaceBridge[T]
	watcher *config.Watcher
	pending json.RawMessage
}

// WithConfig enables a typed configuration read from filename in the first
// workspace folder, hot-reloaded on change and overridden by editor
// settings from initializationOptions and workspace/didChangeConfiguration.
// defaults applies when no file exists.
func WithConfig[T any](filename string, defaults T) Option {
	return func(s *Server) {
		initial := defaults
		s.configHolder = &typedConfigHolder[T]{
			store:    config.NewStore(&initial),
			filename: filename,
			defaults: &defaults,
		}
	}
}

// ConfigStore returns the store behind WithConfig, or nil when the server
// has no config of type T.
func ConfigStore[T any](s *Server) *config.Store[T] {
	if h, ok := s.configHolder.(*typedConfigHolder[T]); ok {
		return h.store
	}
	return nil
}

// Config retrieves the current typed config from the context.
// T must match the type used in WithConfig.
func Config[T any](ctx *Context) *T {
	if store := ConfigStore[T](ctx.server); store != nil {
		return store.Get()
	}
	return nil
}

func (h *typedConfigHolder[T]) start(logger *slog.Logger, rootDir string, overlay json.RawMessage) error {
	fullPath := filepath.Join(rootDir, h.filename)
	bridge := config.NewWorkspaceBridge(h.store, fullPath, h.defaults)

	h.mu.Lock()
	h.bridge = bridge
	if len(h.pending) > 0 {
		overlay = h.pending
	}
	h.mu.Unlock()

	if err := bridge.SetOverlay(overlay); err != nil {
		logger.Warn("failed to load initial config", "path", fullPath, "error", err)
	}

	watcher, err := config.NewWatcher(fullPath, func() {
		if err := bridge.HandleChange(); err != nil {
			logger.Warn("failed to reload config", "path", fullPath, "error", err)
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		// File watching is best-effort.
		logger.Warn("failed to start config watcher", "path", fullPath, "error", err)
		return nil
	}
	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()
	return nil
}

// setOverlay applies editor settings. Settings arriving before start are
// kept until the bridge exists.
func (h *typedConfigHolder[T]) setOverlay(settings json.RawMessage) error {
	h.mu.Lock()
	bridge := h.bridge
	if bridge == nil {
		h.pending = settings
	}
	h.mu.Unlock()
	if bridge == nil {
		return nil
	}
	return bridge.SetOverlay(settings)
}

func (h *typedConfigHolder[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcher != nil {
		h.watcher.Close()
	}
}
