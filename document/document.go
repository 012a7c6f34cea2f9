package document

import (
	"sync"

	"github.com/gossip-lsp/sightline/protocol"
)

// Document is one file the client has open. URI and language id are fixed
// for its lifetime; version and text change with every didChange.
type Document struct {
	uri        protocol.DocumentURI
	languageID string

	mu      sync.RWMutex
	version int32
	text    string
	// onTreeEdit receives the edits of each change for incremental reparsing.
	onTreeEdit func(edits []EditRange)
}

// New creates a Document from the item sent with didOpen.
func New(item protocol.TextDocumentItem) *Document {
	return &Document{
		uri:        item.URI,
		languageID: item.LanguageID,
		version:    item.Version,
		text:       item.Text,
	}
}

func (d *Document) URI() protocol.DocumentURI { return d.uri }

// LanguageID returns the LSP language identifier (e.g., "go", "python").
func (d *Document) LanguageID() string { return d.languageID }

func (d *Document) Version() int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// WordAt returns the word under pos.
func (d *Document) WordAt(pos protocol.Position) string {
	return WordAt(d.Text(), pos)
}

// Snapshot returns the document's current state. Version and text are read
// together.
func (d *Document) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Snapshot{URI: d.uri, LanguageID: d.languageID, Version: d.version, Text: d.text}
}

// SetOnTreeEdit sets the callback for tree-sitter edit notifications.
func (d *Document) SetOnTreeEdit(fn func(edits []EditRange)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTreeEdit = fn
}

// ApplyChanges applies the changes of one didChange and records version.
func (d *Document) ApplyChanges(version int32, changes []protocol.TextDocumentContentChangeEvent) []EditRange {
	d.mu.Lock()
	text, edits := ApplyChanges(d.text, changes)
	d.text = text
	d.version = version
	cb := d.onTreeEdit
	d.mu.Unlock()

	// The callback reads Text, so it runs unlocked.
	if cb != nil && len(edits) > 0 {
		cb(edits)
	}
	return edits
}
