package tsengine_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/definition"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/hover"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/treesitter"
	"github.com/gossip-lsp/sightline/tsengine"
	"github.com/gossip-lsp/sightline/usages"
)

const shapesGo = `package shapes

// Shape is anything with an area.
type Shape interface {
	// Area returns the surface.
	Area() float64
}

// Named carries a name.
type Named struct {
	Name string
}

// Square is a Shape.
type Square struct {
	Named
	Side float64
}

// Area implements Shape.
func (s *Square) Area() float64 { return s.Side * s.Side }

func total(shapes []Shape) float64 {
	sum := 0.0
	for _, s := range shapes {
		sum += s.Area()
	}
	return sum
}

func describe() string {
	sq := &Square{Side: 2}
	_ = total([]Shape{sq})
	return sq.Name
}
`

const animalsPy = `class Animal:
    """Base of all animals."""

    def speak(self, loud):
        return "..."


class Dog(Animal):
    """A good dog."""

    def speak(self, loud):
        """Bark."""
        return "woof"

    def __init__(self):
        self.name = "rex"


def make():
    d = Dog()
    return d.speak(True)
`

var discard = slog.New(slog.DiscardHandler)

type workspace struct {
	dir   string
	files map[string]string
	x     *tsengine.Index
	q     *serial.Queue
}

func newWorkspace(t *testing.T, files map[string]string) *workspace {
	t.Helper()
	dir := t.TempDir()
	for name, text := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	q := serial.New(discard)
	t.Cleanup(q.Close)
	return &workspace{
		dir:   dir,
		files: files,
		x:     tsengine.New(tsengine.WithLogger(discard)),
		q:     q,
	}
}

func loaded(t *testing.T) *workspace {
	t.Helper()
	w := newWorkspace(t, map[string]string{
		"shapes/shapes.go": shapesGo,
		"animals.py":       animalsPy,
		"config.json":      `{"a": 1}`,
		"notes.txt":        "not indexed",
	})
	require.NoError(t, w.x.Load(context.Background(), w.q, w.dir))
	return w
}

func (w *workspace) uri(name string) protocol.DocumentURI {
	return document.URIFromPath(filepath.Join(w.dir, filepath.FromSlash(name)))
}

// offset returns the byte offset of needle in the named file, plus delta.
func (w *workspace) offset(t *testing.T, name, needle string, delta int) int {
	t.Helper()
	i := strings.Index(w.files[name], needle)
	require.GreaterOrEqual(t, i, 0, "%q not in %s", needle, name)
	return i + delta
}

// rangeOf returns the LSP range of the first occurrence of needle.
func (w *workspace) rangeOf(t *testing.T, name, needle string) protocol.Range {
	t.Helper()
	start := w.offset(t, name, needle, 0)
	text := w.files[name]
	return protocol.Range{
		Start: document.PositionAt(text, start),
		End:   document.PositionAt(text, start+len(needle)),
	}
}

// prefixRange returns the range of the first n bytes of needle.
func (w *workspace) prefixRange(t *testing.T, name, needle string, n int) protocol.Range {
	t.Helper()
	r := w.rangeOf(t, name, needle)
	r.End = r.Start
	r.End.Character += uint32(n)
	return r
}

// do runs fn on the test goroutine while the queue is parked, so fn has
// the index to itself and may use require.
func (w *workspace) do(t *testing.T, fn func()) {
	t.Helper()
	parked := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, w.q.Submit(func(context.Context) {
		close(parked)
		<-release
	}))
	<-parked
	defer close(release)
	fn()
}

func TestNotReadyBeforeLoad(t *testing.T) {
	w := newWorkspace(t, map[string]string{"a.go": "package a\n"})
	_, err := w.x.ResolveReferenceAt(w.uri("a.go"), 0)
	assert.ErrorIs(t, err, engine.ErrIndexNotReady)
	assert.False(t, w.x.Ready())
}

func TestLoadIndexesKnownLanguages(t *testing.T) {
	w := loaded(t)
	w.do(t, func() {
		lang, err := w.x.LanguageOf(w.uri("shapes/shapes.go"))
		require.NoError(t, err)
		assert.True(t, lang.IndirectDefinitions)

		lang, err = w.x.LanguageOf(w.uri("animals.py"))
		require.NoError(t, err)
		assert.True(t, lang.SupportsOverriding)

		_, err = w.x.LanguageOf(w.uri("config.json"))
		assert.NoError(t, err)

		_, err = w.x.LanguageOf(w.uri("notes.txt"))
		assert.ErrorIs(t, err, engine.ErrNoDocument)
	})
	assert.True(t, w.x.Ready())
	assert.Equal(t, []string{w.dir}, w.x.Roots())
}

func TestResolveReference(t *testing.T) {
	w := loaded(t)
	file := w.uri("shapes/shapes.go")
	w.do(t, func() {
		got, err := w.x.ResolveReferenceAt(file, w.offset(t, "shapes/shapes.go", "total([]", 0))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, engine.KindFunction, got[0].Kind)
		assert.Equal(t, w.rangeOf(t, "shapes/shapes.go", "total"), got[0].NameRange)

		got, err = w.x.ResolveReferenceAt(file, w.offset(t, "shapes/shapes.go", "s.Area()", 2))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Shape", got[0].Container)
		assert.True(t, got[0].Abstract)
		assert.Equal(t, "Square", got[1].Container)

		got, err = w.x.ResolveReferenceAt(file, w.offset(t, "shapes/shapes.go", "func total", 5))
		require.NoError(t, err)
		assert.Empty(t, got, "declaration names are not references")
	})
}

func newPipeline(w *workspace) *definition.Pipeline {
	return definition.New(w.x, w.q, definition.WithLogger(discard))
}

func TestDefinitionOfInterfaceMethodFindsImplementation(t *testing.T) {
	w := loaded(t)
	got := newPipeline(w).Find(context.Background(), w.uri("shapes/shapes.go"),
		w.offset(t, "shapes/shapes.go", "Area() float64\n}", 0))

	require.Len(t, got, 1)
	assert.Equal(t, w.uri("shapes/shapes.go"), got[0].URI)
	assert.Equal(t, w.rangeOf(t, "shapes/shapes.go", "func (s *Square) Area() float64 { return s.Side * s.Side }"), got[0].Range)
}

const circleGo = `package shapes

// Circle is a Shape.
type Circle struct {
	R float64
}

// Area implements Shape.
func (c *Circle) Area() float64 { return 3 * c.R * c.R }
`

func TestDefinitionOfInterfaceMethodFindsEveryImplementation(t *testing.T) {
	w := newWorkspace(t, map[string]string{
		"shapes/shapes.go": shapesGo,
		"shapes/circle.go": circleGo,
	})
	require.NoError(t, w.x.Load(context.Background(), w.q, w.dir))

	got := newPipeline(w).Find(context.Background(), w.uri("shapes/shapes.go"),
		w.offset(t, "shapes/shapes.go", "Area() float64\n}", 0))

	require.Len(t, got, 2, "one location per implementation")
	assert.ElementsMatch(t, []protocol.Location{
		{URI: w.uri("shapes/shapes.go"), Range: w.rangeOf(t, "shapes/shapes.go", "func (s *Square) Area() float64 { return s.Side * s.Side }")},
		{URI: w.uri("shapes/circle.go"), Range: w.rangeOf(t, "shapes/circle.go", "func (c *Circle) Area() float64 { return 3 * c.R * c.R }")},
	}, got)
}

func TestDefinitionOfTypeFindsSupertypes(t *testing.T) {
	w := loaded(t)
	got := newPipeline(w).Find(context.Background(), w.uri("shapes/shapes.go"),
		w.offset(t, "shapes/shapes.go", "Square struct", 0))

	require.Len(t, got, 2)
	assert.Equal(t, w.rangeOf(t, "shapes/shapes.go", "Named struct {\n\tName string\n}"), got[0].Range)
	assert.Equal(t, w.rangeOf(t, "shapes/shapes.go", "Shape interface {\n\t// Area returns the surface.\n\tArea() float64\n}"), got[1].Range)
}

func TestDefinitionOfMethodFindsInterfaceMethod(t *testing.T) {
	w := loaded(t)
	got := newPipeline(w).Find(context.Background(), w.uri("shapes/shapes.go"),
		w.offset(t, "shapes/shapes.go", "Area() float64 {", 0))

	require.Len(t, got, 1)
	assert.Equal(t, w.rangeOf(t, "shapes/shapes.go", "Area() float64"), got[0].Range)
}

func TestDefinitionOfPythonOverride(t *testing.T) {
	w := loaded(t)
	text := w.files["animals.py"]
	dogSpeak := strings.LastIndex(text, "def speak") + len("def ")

	got := newPipeline(w).Find(context.Background(), w.uri("animals.py"), dogSpeak)
	require.Len(t, got, 1)
	assert.Equal(t, document.PositionAt(text, w.offset(t, "animals.py", "def speak", 0)), got[0].Range.Start)
}

func TestDefinitionOfPlainReference(t *testing.T) {
	w := loaded(t)
	got := newPipeline(w).Find(context.Background(), w.uri("animals.py"),
		w.offset(t, "animals.py", "Dog()", 0))

	require.Len(t, got, 1)
	assert.Equal(t, w.rangeOf(t, "animals.py", "class Dog").Start, got[0].Range.Start)
}

func TestPythonDescriptors(t *testing.T) {
	w := loaded(t)
	file := w.uri("animals.py")
	w.do(t, func() {
		dog, err := w.x.DeclarationAt(file, w.offset(t, "animals.py", "Dog(Animal)", 0))
		require.NoError(t, err)
		d, err := w.x.ResolveDescriptor(dog, engine.ResolvePartial)
		require.NoError(t, err)
		assert.Equal(t, engine.DescriptorType, d.Kind())

		supers, err := w.x.Supertypes(d)
		require.NoError(t, err)
		require.Len(t, supers, 2)
		assert.Equal(t, "class Animal", supers[0].Name())
		assert.True(t, supers[1].IsRoot())

		root, err := w.x.DescriptorToDeclaration(supers[1])
		require.NoError(t, err)
		assert.Nil(t, root)

		init, err := w.x.DeclarationAt(file, w.offset(t, "animals.py", "__init__", 0))
		require.NoError(t, err)
		d, err = w.x.ResolveDescriptor(init, engine.ResolveFull)
		require.NoError(t, err)
		overrides, err := w.x.DirectOverrides(d)
		require.NoError(t, err)
		require.Len(t, overrides, 1)
		assert.True(t, overrides[0].IsRoot())
	})
}

func TestResolveDescriptorNeedsDeclaration(t *testing.T) {
	w := loaded(t)
	w.do(t, func() {
		tok, err := w.x.ElementAt(w.uri("animals.py"), w.offset(t, "animals.py", "Dog()", 0))
		require.NoError(t, err)
		require.NotNil(t, tok)
		_, err = w.x.ResolveDescriptor(tok, engine.ResolvePartial)
		assert.ErrorIs(t, err, engine.ErrNoDescriptor)
	})
}

func TestUsages(t *testing.T) {
	w := loaded(t)
	finder := usages.NewFinder(w.x, w.q, discard)

	got := finder.Find(context.Background(), w.uri("shapes/shapes.go"), w.offset(t, "shapes/shapes.go", "func total", 5))
	require.Len(t, got, 1)
	assert.Equal(t, w.prefixRange(t, "shapes/shapes.go", "total([]", len("total")), got[0].Range)

	got = finder.Find(context.Background(), w.uri("animals.py"), w.offset(t, "animals.py", "Dog(Animal)", 0))
	require.Len(t, got, 1)
	assert.Equal(t, w.rangeOf(t, "animals.py", "Dog()").Start, got[0].Range.Start)

	got = finder.Find(context.Background(), w.uri("shapes/shapes.go"), w.offset(t, "shapes/shapes.go", "Area() float64 {", 0))
	assert.Len(t, got, 1, "s.Area() may call Square.Area")
}

func TestHoverDocumentation(t *testing.T) {
	w := loaded(t)
	a, err := hover.New(w.x, w.q, hover.WithLogger(discard))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	got := a.Hover(context.Background(), w.uri("shapes/shapes.go"), w.offset(t, "shapes/shapes.go", "Square{Side", 0))
	assert.Equal(t, protocol.MarkedString{Language: "go", Value: "type Square struct\n\nSquare is a Shape."}, got)

	got = a.Hover(context.Background(), w.uri("animals.py"), w.offset(t, "animals.py", "Dog()", 0))
	assert.Equal(t, protocol.MarkedString{Language: "python", Value: "class Dog(Animal)\n\nA good dog."}, got)

	got = a.Hover(context.Background(), w.uri("shapes/shapes.go"), w.offset(t, "shapes/shapes.go", "Area() float64\n", 0))
	assert.Equal(t, "Area() float64\n\nArea returns the surface.", got.Value)

	got = a.Hover(context.Background(), w.uri("shapes/shapes.go"), 0)
	assert.Empty(t, got.Value)
}

func TestAttachTracksOpenDocuments(t *testing.T) {
	w := loaded(t)
	store := document.NewStore()
	mgr := treesitter.NewManager(treesitter.DefaultConfig(), store)
	t.Cleanup(mgr.Close)
	w.x.Attach(mgr, store, w.q)

	file := w.uri("shapes/shapes.go")
	before := w.x.Generation()
	edited := shapesGo + "\nfunc extra() float64 { return total(nil) }\n"
	store.Open(&protocol.DidOpenTextDocumentParams{TextDocument: protocol.TextDocumentItem{
		URI: file, LanguageID: "go", Version: 1, Text: edited,
	}})

	w.do(t, func() {
		assert.Greater(t, w.x.Generation(), before)
		decl, err := w.x.DeclarationAt(file, strings.Index(edited, "extra"))
		require.NoError(t, err)
		require.NotNil(t, decl)
		assert.Equal(t, "extra", decl.Name)
	})

	store.Close(&protocol.DidCloseTextDocumentParams{TextDocument: protocol.TextDocumentIdentifier{URI: file}})
	w.do(t, func() {
		decl, err := w.x.DeclarationAt(file, strings.Index(edited, "extra"))
		require.NoError(t, err)
		assert.Nil(t, decl, "closing reverts to disk contents")
	})
}

func TestForget(t *testing.T) {
	w := loaded(t)
	w.do(t, func() {
		w.x.Forget(w.dir)
		_, err := w.x.LanguageOf(w.uri("animals.py"))
		assert.ErrorIs(t, err, engine.ErrNoDocument)
	})
	assert.Empty(t, w.x.Roots())
}
