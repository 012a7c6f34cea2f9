package treesitter

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
)

// TreeUpdateFunc is called after a tree is parsed or re-parsed. The tree is
// only valid for the duration of the call.
type TreeUpdateFunc func(uri protocol.DocumentURI, lang *tree_sitter.Language, tree *Tree)

// Manager manages tree-sitter parsers and trees for all open documents.
// It is tied to a document.Store and automatically parses on open and re-parses
// incrementally on change.
type Manager struct {
	registry *Registry
	store    *document.Store

	mu      sync.RWMutex
	parsers map[protocol.DocumentURI]*tree_sitter.Parser
	langs   map[protocol.DocumentURI]*tree_sitter.Language
	trees   map[protocol.DocumentURI]*Tree

	onTreeUpdate []TreeUpdateFunc
}

// NewManager creates a new tree-sitter manager tied to a document store.
func NewManager(cfg Config, store *document.Store) *Manager {
	m := &Manager{
		registry: NewRegistry(cfg),
		store:    store,
		parsers:  make(map[protocol.DocumentURI]*tree_sitter.Parser),
		langs:    make(map[protocol.DocumentURI]*tree_sitter.Language),
		trees:    make(map[protocol.DocumentURI]*Tree),
	}

	store.OnOpen(m.handleOpen)
	store.OnClose(m.handleClose)

	return m
}

// OnTreeUpdate registers a callback that fires after every parse/reparse.
// Callbacks run while the manager holds its lock and must not call back into it.
func (m *Manager) OnTreeUpdate(fn TreeUpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTreeUpdate = append(m.onTreeUpdate, fn)
}

// Registry returns the language registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// WithTree calls fn with the current tree for uri while holding a read lock,
// so the tree cannot be replaced underneath it. It reports whether a tree
// existed.
func (m *Manager) WithTree(uri protocol.DocumentURI, fn func(lang *tree_sitter.Language, tree *Tree)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tree, ok := m.trees[uri]
	if !ok {
		return false
	}
	fn(m.langs[uri], tree)
	return true
}

// handleOpen is called when a document is opened. It creates a parser and
// performs the initial full parse.
func (m *Manager) handleOpen(doc *document.Document) {
	uri := doc.URI()
	lang, err := m.registry.LanguageForURI(string(uri), doc.LanguageID())
	if err != nil {
		return
	}

	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		parser.Close()
		return
	}

	src := []byte(doc.Text())
	raw := parser.Parse(src, nil)
	if raw == nil {
		parser.Close()
		return
	}
	wrapped := &Tree{raw: raw, src: src}

	m.mu.Lock()
	if old, ok := m.parsers[uri]; ok {
		old.Close()
	}
	if old, ok := m.trees[uri]; ok {
		old.Close()
	}
	m.parsers[uri] = parser
	m.langs[uri] = lang
	m.trees[uri] = wrapped
	m.notify(uri, lang, wrapped)
	m.mu.Unlock()

	doc.SetOnTreeEdit(func(edits []document.EditRange) {
		m.handleEdits(uri, edits)
	})
}

// handleClose is called when a document is closed. It cleans up the parser and tree.
func (m *Manager) handleClose(uri protocol.DocumentURI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if parser, ok := m.parsers[uri]; ok {
		parser.Close()
		delete(m.parsers, uri)
	}
	if tree, ok := m.trees[uri]; ok {
		tree.Close()
		delete(m.trees, uri)
	}
	delete(m.langs, uri)
}

// handleEdits performs incremental re-parsing after document edits.
func (m *Manager) handleEdits(uri protocol.DocumentURI, edits []document.EditRange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parser, ok := m.parsers[uri]
	if !ok {
		return
	}
	oldTree, ok := m.trees[uri]
	if !ok || oldTree.raw == nil {
		return
	}

	doc := m.store.Get(uri)
	if doc == nil {
		return
	}

	for _, edit := range edits {
		oldTree.raw.Edit(&tree_sitter.InputEdit{
			StartByte:      uint(edit.StartByte),
			OldEndByte:     uint(edit.OldEndByte),
			NewEndByte:     uint(edit.NewEndByte),
			StartPosition:  point(edit.Start),
			OldEndPosition: point(edit.OldEnd),
			NewEndPosition: point(edit.NewEnd),
		})
	}

	src := []byte(doc.Text())
	newRaw := parser.Parse(src, oldTree.raw)
	if newRaw == nil {
		return
	}

	oldTree.Close()
	wrapped := &Tree{raw: newRaw, src: src}
	m.trees[uri] = wrapped
	m.notify(uri, m.langs[uri], wrapped)
}

func point(p document.Point) tree_sitter.Point {
	return tree_sitter.Point{Row: uint(p.Row), Column: uint(p.Column)}
}

// notify must be called with m.mu held.
func (m *Manager) notify(uri protocol.DocumentURI, lang *tree_sitter.Language, tree *Tree) {
	for _, cb := range m.onTreeUpdate {
		cb(uri, lang, tree)
	}
}

// Close releases all parsers and trees.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uri, parser := range m.parsers {
		parser.Close()
		delete(m.parsers, uri)
	}
	for uri, tree := range m.trees {
		tree.Close()
		delete(m.trees, uri)
	}
	clear(m.langs)
}
