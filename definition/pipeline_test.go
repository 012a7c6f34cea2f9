package definition_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/definition"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/engine/enginetest"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
)

const (
	fileA = protocol.DocumentURI("file:///ws/a.go")
	fileB = protocol.DocumentURI("file:///ws/b.go")
)

var goLang = engine.Language{ID: "go", IndirectDefinitions: true}

func newQueue(t *testing.T) *serial.Queue {
	t.Helper()
	q := serial.New(slog.New(slog.DiscardHandler))
	t.Cleanup(q.Close)
	return q
}

// scripted is a strategy with a canned answer.
type scripted struct {
	name  string
	locs  []protocol.Location
	err   error
	calls int
}

func (s *scripted) Name() string                 { return s.name }
func (s *scripted) Applies(engine.Language) bool { return true }

func (s *scripted) Attempt(context.Context, *definition.Request) ([]protocol.Location, error) {
	s.calls++
	return s.locs, s.err
}

func loc(uri protocol.DocumentURI, line uint32) protocol.Location {
	return protocol.Location{URI: uri, Range: protocol.Range{
		Start: protocol.Position{Line: line},
		End:   protocol.Position{Line: line + 2},
	}}
}

func TestPipelineFirstNonEmptyWins(t *testing.T) {
	first := &scripted{name: "first"}
	second := &scripted{name: "second", locs: []protocol.Location{loc(fileB, 3)}}
	third := &scripted{name: "third", locs: []protocol.Location{loc(fileB, 9)}}

	p := definition.New(&enginetest.Fake{Language: goLang}, newQueue(t),
		definition.WithStrategies(first, second, third))

	got := p.Find(context.Background(), fileA, 0)
	assert.Equal(t, []protocol.Location{loc(fileB, 3)}, got)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls, "later strategies must not run")
}

func TestPipelineAllEmpty(t *testing.T) {
	p := definition.New(&enginetest.Fake{Language: goLang}, newQueue(t),
		definition.WithStrategies(&scripted{name: "a"}, &scripted{name: "b"}))

	got := p.Find(context.Background(), fileA, 0)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPipelineStopsOnSentinels(t *testing.T) {
	for _, sentinel := range []error{engine.ErrNoDescriptor, engine.ErrIndexNotReady} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			stop := &scripted{name: "stop", err: sentinel}
			after := &scripted{name: "after", locs: []protocol.Location{loc(fileB, 1)}}
			p := definition.New(&enginetest.Fake{Language: goLang}, newQueue(t),
				definition.WithStrategies(stop, after))

			got := p.Find(context.Background(), fileA, 0)
			require.NotNil(t, got)
			assert.Empty(t, got)
			assert.Zero(t, after.calls)
		})
	}
}

func TestPipelineLogsAndContinuesOnOtherErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	broken := &scripted{name: "broken", err: errors.New("boom")}
	next := &scripted{name: "next", locs: []protocol.Location{loc(fileB, 4)}}
	p := definition.New(&enginetest.Fake{Language: goLang}, newQueue(t),
		definition.WithLogger(logger),
		definition.WithStrategies(broken, next))

	got := p.Find(context.Background(), fileA, 0)
	assert.Equal(t, []protocol.Location{loc(fileB, 4)}, got)
	assert.Contains(t, buf.String(), "strategy=broken")
	assert.Contains(t, buf.String(), "boom")
}

func TestPipelineUnknownDocument(t *testing.T) {
	fake := &enginetest.Fake{LanguageErr: engine.ErrNoDocument}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 0)
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, fake.Called("ResolveReferenceAt"))
}

func TestReferenceStrategyDropsUnmappable(t *testing.T) {
	target := enginetest.Element(fileB, "Run", engine.KindFunction, 10)
	fake := &enginetest.Fake{
		Language: goLang,
		ReferencesAt: func(uri protocol.DocumentURI, offset int) ([]*engine.Element, error) {
			assert.Equal(t, fileA, uri)
			assert.Equal(t, 42, offset)
			return []*engine.Element{target, nil, {Name: "builtin"}}, nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 42)
	assert.Equal(t, []protocol.Location{target.Location()}, got)
	assert.False(t, fake.Called("ElementAt"), "fallbacks must not run after a hit")
}

func TestSuperMethodStrategy(t *testing.T) {
	method := enginetest.Element(fileA, "speak", engine.KindMethod, 5)
	super := enginetest.Element(fileB, "speak", engine.KindMethod, 1)
	fake := &enginetest.Fake{
		Language: engine.Language{ID: "python", SupportsOverriding: true},
		DeclarationFn: func(protocol.DocumentURI, int) (*engine.Element, error) {
			return method, nil
		},
		SuperMethodFn: func(m *engine.Element) (*engine.Element, error) {
			assert.Same(t, method, m)
			return super, nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 60)
	assert.Equal(t, []protocol.Location{super.Location()}, got)
	assert.False(t, fake.Called("FindDefinitionsOf"), "python has no indirect definitions")
}

func TestSuperMethodStrategyIgnoresNonMethods(t *testing.T) {
	fake := &enginetest.Fake{
		Language: engine.Language{ID: "python", SupportsOverriding: true},
		DeclarationFn: func(protocol.DocumentURI, int) (*engine.Element, error) {
			return enginetest.Element(fileA, "helper", engine.KindFunction, 5), nil
		},
	}
	p := definition.New(fake, newQueue(t))

	assert.Empty(t, p.Find(context.Background(), fileA, 60))
	assert.False(t, fake.Called("FindSuperMethodSignature"))
}

func TestDefinitionsSearchNormalizesAndDedupes(t *testing.T) {
	class := enginetest.Element(fileB, "Server", engine.KindClass, 20)
	impl := enginetest.Element(fileB, "Serve", engine.KindMethod, 40)
	fake := &enginetest.Fake{
		Language: goLang,
		ElementAtFn: func(protocol.DocumentURI, int) (*engine.Element, error) {
			return &engine.Element{URI: fileA, Name: "Server"}, nil
		},
		DefinitionsFn: func(*engine.Element) ([]*engine.Element, error) {
			return []*engine.Element{class, impl, class, impl}, nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 7)
	require.Len(t, got, 2)
	assert.Equal(t, protocol.Location{URI: fileB, Range: class.NameRange}, got[0])
	assert.Equal(t, impl.Location(), got[1])
}

func TestSuperDeclarationSupertypes(t *testing.T) {
	reader := enginetest.Element(fileB, "Reader", engine.KindInterface, 1)
	closer := enginetest.Element(fileB, "Closer", engine.KindInterface, 5)
	readerD := &enginetest.Descriptor{K: engine.DescriptorType, N: "Reader", Decl: reader}
	closerD := &enginetest.Descriptor{K: engine.DescriptorType, N: "Closer", Decl: closer}
	root := &enginetest.Descriptor{K: engine.DescriptorType, N: "any", Root: true,
		Decl: enginetest.Element(fileB, "any", engine.KindInterface, 90)}
	self := &enginetest.Descriptor{K: engine.DescriptorType, N: "File",
		Supers: []engine.Descriptor{readerD, closerD, readerD, root}}

	var gotKinds []engine.ElementKind
	fake := &enginetest.Fake{
		Language: goLang,
		EnclosingFn: func(_ protocol.DocumentURI, _ int, kinds []engine.ElementKind) (*engine.Element, error) {
			gotKinds = kinds
			return enginetest.Element(fileA, "File", engine.KindClass, 3), nil
		},
		DescriptorFn: func(_ *engine.Element, mode engine.ResolveMode) (engine.Descriptor, error) {
			assert.Equal(t, engine.ResolvePartial, mode)
			return self, nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 12)
	assert.Equal(t, []protocol.Location{reader.Location(), closer.Location()}, got)
	assert.ElementsMatch(t, []engine.ElementKind{
		engine.KindFunction, engine.KindMethod, engine.KindClass,
		engine.KindInterface, engine.KindProperty, engine.KindObject,
	}, gotKinds)
}

func TestSuperDeclarationDirectOverridesOnly(t *testing.T) {
	parent := enginetest.Element(fileB, "Close", engine.KindMethod, 8)
	grand := enginetest.Element(fileB, "Close", engine.KindMethod, 2)
	grandD := &enginetest.Descriptor{K: engine.DescriptorCallable, N: "Close", Decl: grand}
	parentD := &enginetest.Descriptor{K: engine.DescriptorCallable, N: "Close", Decl: parent,
		Overrides: []engine.Descriptor{grandD}}
	self := &enginetest.Descriptor{K: engine.DescriptorCallable, N: "Close",
		Overrides: []engine.Descriptor{parentD}}

	fake := &enginetest.Fake{
		Language: goLang,
		EnclosingFn: func(protocol.DocumentURI, int, []engine.ElementKind) (*engine.Element, error) {
			return enginetest.Element(fileA, "Close", engine.KindMethod, 30), nil
		},
		DescriptorFn: func(*engine.Element, engine.ResolveMode) (engine.Descriptor, error) {
			return self, nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 0)
	assert.Equal(t, []protocol.Location{parent.Location()}, got)
}

func TestSuperDeclarationNoDescriptor(t *testing.T) {
	fake := &enginetest.Fake{
		Language: goLang,
		EnclosingFn: func(protocol.DocumentURI, int, []engine.ElementKind) (*engine.Element, error) {
			return enginetest.Element(fileA, "x", engine.KindProperty, 1), nil
		},
	}
	p := definition.New(fake, newQueue(t))

	got := p.Find(context.Background(), fileA, 0)
	require.NotNil(t, got)
	assert.Empty(t, got)
	assert.True(t, fake.Called("ResolveDescriptor"))
}

func TestStrategiesGatedByLanguage(t *testing.T) {
	plain := engine.Language{ID: "json"}
	for _, s := range definition.DefaultStrategies() {
		want := s.Name() == "reference"
		assert.Equal(t, want, s.Applies(plain), s.Name())
	}
}

type memTexts map[protocol.DocumentURI]string

func (m memTexts) Read(uri protocol.DocumentURI) (document.Snapshot, error) {
	text, ok := m[uri]
	if !ok {
		return document.Snapshot{}, errors.New("not found")
	}
	return document.Snapshot{URI: uri, Text: text}, nil
}

func TestCommandUsesOffset(t *testing.T) {
	target := enginetest.Element(fileB, "Run", engine.KindFunction, 10)
	var offset int
	fake := &enginetest.Fake{
		Language: goLang,
		ReferencesAt: func(_ protocol.DocumentURI, off int) ([]*engine.Element, error) {
			offset = off
			return []*engine.Element{target}, nil
		},
	}
	cmd := definition.New(fake, newQueue(t)).Command()

	texts := memTexts{fileA: "package a\nfunc f() { Run() }\n"}
	ec := command.NewExecutionContext(texts, fileA, "file:///ws", &protocol.Position{Line: 1, Character: 11}, nil)

	got, err := cmd.Execute(context.Background(), ec)
	require.NoError(t, err)
	assert.Equal(t, []protocol.Location{target.Location()}, got)
	assert.Equal(t, 21, offset)
}

func TestCommandWithoutPosition(t *testing.T) {
	cmd := definition.New(&enginetest.Fake{Language: goLang}, newQueue(t)).Command()
	ec := command.NewExecutionContext(memTexts{}, fileA, "", nil, nil)

	got, err := cmd.Execute(context.Background(), ec)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}
