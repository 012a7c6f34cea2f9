// Package enginetest provides a scriptable engine.Engine for tests of the
// code-intelligence packages.
package enginetest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
)

// Descriptor is a plain engine.Descriptor. Decl is what
// DescriptorToDeclaration returns for it.
type Descriptor struct {
	K    engine.DescriptorKind
	N    string
	Root bool
	Decl *engine.Element

	Supers    []engine.Descriptor
	Overrides []engine.Descriptor
}

func (d *Descriptor) Kind() engine.DescriptorKind { return d.K }
func (d *Descriptor) Name() string                { return d.N }
func (d *Descriptor) IsRoot() bool                { return d.Root }

// Fake implements engine.Engine. Nil hooks behave as "nothing found".
type Fake struct {
	Language engine.Language

	ReferencesAt  func(uri protocol.DocumentURI, offset int) ([]*engine.Element, error)
	ElementAtFn   func(uri protocol.DocumentURI, offset int) (*engine.Element, error)
	DeclarationFn func(uri protocol.DocumentURI, offset int) (*engine.Element, error)
	EnclosingFn   func(uri protocol.DocumentURI, offset int, kinds []engine.ElementKind) (*engine.Element, error)
	TargetFn      func(uri protocol.DocumentURI, offset int) (*engine.Element, error)
	DefinitionsFn func(el *engine.Element) ([]*engine.Element, error)
	SuperMethodFn func(method *engine.Element) (*engine.Element, error)
	DescriptorFn  func(decl *engine.Element, mode engine.ResolveMode) (engine.Descriptor, error)
	UsagesFn      func(ctx context.Context, target *engine.Element, sink engine.Collector) error
	DocumentFn    func(el, token *engine.Element) (string, error)
	LanguageErr   error

	Gen atomic.Uint64

	mu    sync.Mutex
	calls []string
}

func (f *Fake) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

// Calls returns the engine methods invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Called reports whether method was invoked.
func (f *Fake) Called(method string) bool {
	for _, c := range f.Calls() {
		if c == method {
			return true
		}
	}
	return false
}

func (f *Fake) LanguageOf(protocol.DocumentURI) (engine.Language, error) {
	f.record("LanguageOf")
	return f.Language, f.LanguageErr
}

func (f *Fake) ResolveReferenceAt(uri protocol.DocumentURI, offset int) ([]*engine.Element, error) {
	f.record("ResolveReferenceAt")
	if f.ReferencesAt == nil {
		return nil, nil
	}
	return f.ReferencesAt(uri, offset)
}

func (f *Fake) ElementAt(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	f.record("ElementAt")
	if f.ElementAtFn == nil {
		return nil, nil
	}
	return f.ElementAtFn(uri, offset)
}

func (f *Fake) DeclarationAt(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	f.record("DeclarationAt")
	if f.DeclarationFn == nil {
		return nil, nil
	}
	return f.DeclarationFn(uri, offset)
}

func (f *Fake) EnclosingDeclaration(uri protocol.DocumentURI, offset int, kinds ...engine.ElementKind) (*engine.Element, error) {
	f.record("EnclosingDeclaration")
	if f.EnclosingFn == nil {
		return nil, nil
	}
	return f.EnclosingFn(uri, offset, kinds)
}

func (f *Fake) FindTargetElement(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	f.record("FindTargetElement")
	if f.TargetFn == nil {
		return nil, nil
	}
	return f.TargetFn(uri, offset)
}

func (f *Fake) FindDefinitionsOf(el *engine.Element) ([]*engine.Element, error) {
	f.record("FindDefinitionsOf")
	if f.DefinitionsFn == nil {
		return nil, nil
	}
	return f.DefinitionsFn(el)
}

func (f *Fake) FindSuperMethodSignature(method *engine.Element) (*engine.Element, error) {
	f.record("FindSuperMethodSignature")
	if f.SuperMethodFn == nil {
		return nil, nil
	}
	return f.SuperMethodFn(method)
}

func (f *Fake) ResolveDescriptor(decl *engine.Element, mode engine.ResolveMode) (engine.Descriptor, error) {
	f.record("ResolveDescriptor")
	if f.DescriptorFn == nil {
		return nil, engine.ErrNoDescriptor
	}
	return f.DescriptorFn(decl, mode)
}

func (f *Fake) DescriptorToDeclaration(d engine.Descriptor) (*engine.Element, error) {
	f.record("DescriptorToDeclaration")
	if fd, ok := d.(*Descriptor); ok {
		return fd.Decl, nil
	}
	return nil, nil
}

func (f *Fake) Supertypes(d engine.Descriptor) ([]engine.Descriptor, error) {
	f.record("Supertypes")
	if fd, ok := d.(*Descriptor); ok {
		return fd.Supers, nil
	}
	return nil, nil
}

func (f *Fake) DirectOverrides(d engine.Descriptor) ([]engine.Descriptor, error) {
	f.record("DirectOverrides")
	if fd, ok := d.(*Descriptor); ok {
		return fd.Overrides, nil
	}
	return nil, nil
}

func (f *Fake) RunUsageSearch(ctx context.Context, target *engine.Element, sink engine.Collector) error {
	f.record("RunUsageSearch")
	if f.UsagesFn == nil {
		return nil
	}
	return f.UsagesFn(ctx, target, sink)
}

func (f *Fake) RenderDocumentation(el, token *engine.Element) (string, error) {
	f.record("RenderDocumentation")
	if f.DocumentFn == nil {
		return "", nil
	}
	return f.DocumentFn(el, token)
}

func (f *Fake) Generation() uint64 { return f.Gen.Load() }

// Element returns a declaration element spanning the given lines of uri.
func Element(uri protocol.DocumentURI, name string, kind engine.ElementKind, line uint32) *engine.Element {
	r := protocol.Range{
		Start: protocol.Position{Line: line},
		End:   protocol.Position{Line: line + 2},
	}
	return &engine.Element{
		URI:       uri,
		Name:      name,
		Kind:      kind,
		Range:     r,
		NameRange: protocol.Range{Start: protocol.Position{Line: line, Character: 5}, End: protocol.Position{Line: line, Character: 5 + uint32(len(name))}},
	}
}

var _ engine.Engine = (*Fake)(nil)
