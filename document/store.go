// Package document provides a thread-safe store of open text documents with a
// disk fallback for files the client has not opened, plus position and URI
// utilities. Open documents are tracked via didOpen/didChange/didClose and
// support incremental text synchronization.
package document

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gossip-lsp/sightline/protocol"
)

// Snapshot is an immutable view of a document's text at one version.
// Version is zero for text read from disk.
type Snapshot struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int32
	Text       string
}

// Open reports whether the snapshot came from a client-owned document.
func (s Snapshot) Open() bool { return s.Version != 0 }

// Store is a thread-safe store of open text documents.
type Store struct {
	mu   sync.RWMutex
	docs map[protocol.DocumentURI]*Document

	readFile func(path string) ([]byte, error)

	onOpenCallbacks   []func(doc *Document)
	onChangeCallbacks []func(doc *Document)
	onCloseCallbacks  []func(uri protocol.DocumentURI)
}

// NewStore creates a new empty document store that falls back to the local
// filesystem for unopened documents.
func NewStore() *Store {
	return &Store{
		docs:     make(map[protocol.DocumentURI]*Document),
		readFile: os.ReadFile,
	}
}

// OnOpen registers a callback called when a document is opened. Multiple
// callbacks can be registered; they fire in registration order.
func (s *Store) OnOpen(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOpenCallbacks = append(s.onOpenCallbacks, fn)
}

// OnChange registers a callback called after edits have been applied.
func (s *Store) OnChange(fn func(doc *Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChangeCallbacks = append(s.onChangeCallbacks, fn)
}

// OnClose registers a callback called when a document is closed. Multiple
// callbacks can be registered; they fire in registration order.
func (s *Store) OnClose(fn func(uri protocol.DocumentURI)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCloseCallbacks = append(s.onCloseCallbacks, fn)
}

// Get returns the open document for the given URI, or nil if not open.
func (s *Store) Get(uri protocol.DocumentURI) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

// Read returns the current text of uri: the open document when the client
// owns it, the file on disk otherwise.
func (s *Store) Read(uri protocol.DocumentURI) (Snapshot, error) {
	if doc := s.Get(uri); doc != nil {
		return doc.Snapshot(), nil
	}
	path := PathFromURI(uri)
	if path == "" {
		return Snapshot{}, fmt.Errorf("reading %s: not a file URI", uri)
	}
	data, err := s.readFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading %s: %w", uri, err)
	}
	return Snapshot{URI: uri, LanguageID: LanguageIDForPath(path), Text: string(data)}, nil
}

// URIs returns all open document URIs in sorted order.
func (s *Store) URIs() []protocol.DocumentURI {
	s.mu.RLock()
	uris := make([]protocol.DocumentURI, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	s.mu.RUnlock()
	sort.Slice(uris, func(i, j int) bool { return uris[i] < uris[j] })
	return uris
}

// Open adds a document to the store from a didOpen notification.
func (s *Store) Open(params *protocol.DidOpenTextDocumentParams) {
	doc := New(params.TextDocument)

	s.mu.Lock()
	s.docs[params.TextDocument.URI] = doc
	callbacks := make([]func(doc *Document), len(s.onOpenCallbacks))
	copy(callbacks, s.onOpenCallbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(doc)
	}
}

// Change applies edits from a didChange notification.
func (s *Store) Change(params *protocol.DidChangeTextDocumentParams) {
	s.mu.RLock()
	doc := s.docs[params.TextDocument.URI]
	callbacks := make([]func(doc *Document), len(s.onChangeCallbacks))
	copy(callbacks, s.onChangeCallbacks)
	s.mu.RUnlock()

	if doc == nil {
		return
	}
	doc.ApplyChanges(params.TextDocument.Version, params.ContentChanges)
	for _, cb := range callbacks {
		cb(doc)
	}
}

// Close removes a document from the store.
func (s *Store) Close(params *protocol.DidCloseTextDocumentParams) {
	s.mu.Lock()
	delete(s.docs, params.TextDocument.URI)
	callbacks := make([]func(uri protocol.DocumentURI), len(s.onCloseCallbacks))
	copy(callbacks, s.onCloseCallbacks)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(params.TextDocument.URI)
	}
}
