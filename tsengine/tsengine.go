// Package tsengine is the bundled semantic engine. It keeps a workspace
// index of Go and Python declarations and references extracted with
// tree-sitter, answers navigation queries from it, and runs syntax-level
// builds.
//
// An Index is owned by one serial.Queue: apart from Load, Attach and
// Generation, its methods must run on that queue.
package tsengine

import (
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/treesitter"
)

// Language ids with semantic support.
const (
	langGo     = "go"
	langPython = "python"
)

var languages = map[string]engine.Language{
	langGo:     {ID: langGo, IndirectDefinitions: true},
	langPython: {ID: langPython, SupportsOverriding: true},
	"json":     {ID: "json"},
	"yaml":     {ID: "yaml"},
}

// fileIndex is everything known about one file.
type fileIndex struct {
	uri  protocol.DocumentURI
	lang string
	// pkg groups files for same-package preference: the directory for Go,
	// the file itself for Python.
	pkg   string
	src   *source
	hash  uint64
	decls []*decl
	refs  []ref
	open  bool
}

// decl is a declaration. Offsets are bytes into the file text.
type decl struct {
	file      *fileIndex
	el        *engine.Element
	start     int
	end       int
	nameStart int
	nameEnd   int
	// supers are the names of embedded types (Go) or base classes (Python).
	supers []string
	doc    string
}

func (d *decl) abstract() bool { return d.el.Abstract }

// ref is an identifier occurrence that is not a declaration name.
type ref struct {
	name   string
	start  int
	end    int
	member bool
}

func (f *fileIndex) element(name string, kind engine.ElementKind, start, end int) *engine.Element {
	r := f.src.span(start, end)
	return &engine.Element{
		URI:       f.uri,
		Name:      name,
		Kind:      kind,
		Language:  f.lang,
		Range:     r,
		NameRange: r,
	}
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the index logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Index) { x.logger = l }
}

// WithRegistry sets the grammar registry. Defaults to
// treesitter.DefaultConfig.
func WithRegistry(r *treesitter.Registry) Option {
	return func(x *Index) { x.registry = r }
}

// Index is the workspace index. It implements engine.Engine.
type Index struct {
	logger   *slog.Logger
	registry *treesitter.Registry
	readFile func(string) ([]byte, error)

	files map[protocol.DocumentURI]*fileIndex
	names map[string][]*decl
	roots []string

	ready atomic.Bool
	gen   atomic.Uint64
}

// New returns an empty index. It reports ErrIndexNotReady until Load has
// completed once.
func New(opts ...Option) *Index {
	x := &Index{
		logger:   slog.Default(),
		readFile: os.ReadFile,
		files:    make(map[protocol.DocumentURI]*fileIndex),
		names:    make(map[string][]*decl),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.registry == nil {
		x.registry = treesitter.NewRegistry(treesitter.DefaultConfig())
	}
	return x
}

// Ready reports whether the initial workspace scan has completed.
func (x *Index) Ready() bool { return x.ready.Load() }

// Generation changes whenever indexed content changes.
func (x *Index) Generation() uint64 { return x.gen.Load() }

// Roots returns the workspace roots loaded so far.
func (x *Index) Roots() []string { return append([]string(nil), x.roots...) }

func (x *Index) install(f *fileIndex) {
	x.remove(f.uri)
	x.files[f.uri] = f
	for _, d := range f.decls {
		x.names[d.el.Name] = append(x.names[d.el.Name], d)
	}
	x.gen.Add(1)
}

func (x *Index) remove(uri protocol.DocumentURI) {
	old, ok := x.files[uri]
	if !ok {
		return
	}
	delete(x.files, uri)
	for _, d := range old.decls {
		kept := x.names[d.el.Name][:0]
		for _, c := range x.names[d.el.Name] {
			if c.file != old {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(x.names, d.el.Name)
		} else {
			x.names[d.el.Name] = kept
		}
	}
	x.gen.Add(1)
}

// sortedFiles returns the indexed files ordered by URI.
func (x *Index) sortedFiles() []*fileIndex {
	out := make([]*fileIndex, 0, len(x.files))
	for _, f := range x.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uri < out[j].uri })
	return out
}

// parse builds the index entry for src. Files in languages without a
// grammar are rejected.
func (x *Index) parse(uri protocol.DocumentURI, langID string, src []byte) (*fileIndex, error) {
	lang, err := x.registry.LanguageForURI(string(uri), langID)
	if err != nil {
		return nil, err
	}
	tree, err := treesitter.Parse(lang, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return extract(uri, langID, tree), nil
}

func extract(uri protocol.DocumentURI, langID string, tree *treesitter.Tree) *fileIndex {
	text := string(tree.Source())
	f := &fileIndex{
		uri:  uri,
		lang: langID,
		pkg:  string(uri),
		src:  newSource(text),
		hash: xxhash.Sum64String(text),
	}
	root := tree.RootNode()
	src := tree.Source()
	switch langID {
	case langGo:
		if i := strings.LastIndexByte(string(uri), '/'); i >= 0 {
			f.pkg = string(uri[:i])
		}
		extractGo(f, root, src)
	case langPython:
		extractPython(f, root, src)
	}
	return f
}

func languageID(uri protocol.DocumentURI) string {
	return document.LanguageIDForPath(document.PathFromURI(uri))
}

// file returns the index entry for uri, checking readiness first.
func (x *Index) file(uri protocol.DocumentURI) (*fileIndex, error) {
	if !x.ready.Load() {
		return nil, engine.ErrIndexNotReady
	}
	f, ok := x.files[uri]
	if !ok {
		return nil, engine.ErrNoDocument
	}
	return f, nil
}

// LanguageOf reports the language capabilities of an indexed file.
func (x *Index) LanguageOf(uri protocol.DocumentURI) (engine.Language, error) {
	f, ok := x.files[uri]
	if !ok {
		return engine.Language{}, engine.ErrNoDocument
	}
	return languages[f.lang], nil
}

var _ engine.Engine = (*Index)(nil)
