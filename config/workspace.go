package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// WorkspaceBridge merges the TOML file with settings pushed through
// workspace/didChangeConfiguration and swaps the result into the store.
// File values are applied first; editor settings override them.
type WorkspaceBridge[T any] struct {
	store    *Store[T]
	filePath string
	defaults *T

	mu      sync.Mutex
	overlay json.RawMessage
}

// NewWorkspaceBridge creates a bridge between workspace configuration and the store.
func NewWorkspaceBridge[T any](store *Store[T], filePath string, defaults *T) *WorkspaceBridge[T] {
	return &WorkspaceBridge[T]{
		store:    store,
		filePath: filePath,
		defaults: defaults,
	}
}

// Path returns the config file the bridge reads.
func (b *WorkspaceBridge[T]) Path() string { return b.filePath }

// HandleChange reloads the config from the TOML file, reapplies the editor
// overlay, and swaps it into the store. It is called by the file watcher and
// after SetOverlay. On error the store keeps its previous value.
func (b *WorkspaceBridge[T]) HandleChange() error {
	cfg, err := LoadTOML[T](b.filePath, b.defaults)
	if err != nil {
		return err
	}

	b.mu.Lock()
	overlay := b.overlay
	b.mu.Unlock()

	if len(overlay) > 0 {
		dec := json.NewDecoder(bytes.NewReader(overlay))
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("applying editor settings: %w", err)
		}
		if err := validate(cfg); err != nil {
			return fmt.Errorf("validating editor settings: %w", err)
		}
	}

	b.store.Swap(cfg)
	return nil
}

// SetOverlay records settings sent by the editor and reloads. A null or
// empty payload clears the overlay.
func (b *WorkspaceBridge[T]) SetOverlay(settings json.RawMessage) error {
	trimmed := bytes.TrimSpace(settings)
	b.mu.Lock()
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		b.overlay = nil
	} else {
		b.overlay = append(json.RawMessage(nil), trimmed...)
	}
	b.mu.Unlock()
	return b.HandleChange()
}
