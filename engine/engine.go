// Package engine declares the capabilities sightline consumes from a
// semantic engine and a build subsystem. The code-intelligence packages are
// written against these interfaces; tsengine provides the bundled
// implementation.
//
// Every method except SubmitBuild must be called from the serialized
// execution context (see package serial) that owns the engine's live state.
package engine

import (
	"context"
	"errors"

	"github.com/gossip-lsp/sightline/protocol"
)

var (
	// ErrIndexNotReady reports that the workspace index is still being
	// built. Callers treat it as "no result for now".
	ErrIndexNotReady = errors.New("engine: index not ready")

	// ErrNoDescriptor reports that a declaration could not be resolved to a
	// semantic descriptor.
	ErrNoDescriptor = errors.New("engine: no descriptor for declaration")

	// ErrNoDocument reports that the file is unknown to the engine.
	ErrNoDocument = errors.New("engine: no such document")
)

// Language describes the per-language behaviour the definition pipeline
// switches on.
type Language struct {
	// ID is the LSP language identifier.
	ID string
	// SupportsOverriding enables the super-method fallback.
	SupportsOverriding bool
	// IndirectDefinitions enables the index-search and super-declaration
	// fallbacks.
	IndirectDefinitions bool
}

// Navigator answers positional questions about a file.
type Navigator interface {
	LanguageOf(uri protocol.DocumentURI) (Language, error)
	// ResolveReferenceAt resolves the reference under offset directly to
	// its target declarations.
	ResolveReferenceAt(uri protocol.DocumentURI, offset int) ([]*Element, error)
	// ElementAt returns the raw token at offset, or nil.
	ElementAt(uri protocol.DocumentURI, offset int) (*Element, error)
	// DeclarationAt returns the declaration whose name token is at offset, or nil.
	DeclarationAt(uri protocol.DocumentURI, offset int) (*Element, error)
	// EnclosingDeclaration returns the innermost declaration of one of the
	// given kinds that contains offset, or nil.
	EnclosingDeclaration(uri protocol.DocumentURI, offset int, kinds ...ElementKind) (*Element, error)
	// FindTargetElement returns the most specific element at offset that
	// usages and documentation can be computed for, or nil.
	FindTargetElement(uri protocol.DocumentURI, offset int) (*Element, error)
}

// DefinitionIndex searches the workspace index.
type DefinitionIndex interface {
	// FindDefinitionsOf returns the definitions of el including concrete
	// implementors of abstract declarations.
	FindDefinitionsOf(el *Element) ([]*Element, error)
	// FindSuperMethodSignature returns the nearest overridden method with a
	// compatible signature, or nil.
	FindSuperMethodSignature(method *Element) (*Element, error)
}

// DescriptorResolver maps declarations to descriptors and back.
type DescriptorResolver interface {
	ResolveDescriptor(decl *Element, mode ResolveMode) (Descriptor, error)
	// DescriptorToDeclaration returns the source declaration of d, or nil
	// when it has none.
	DescriptorToDeclaration(d Descriptor) (*Element, error)
}

// UsageSearcher drives a workspace-wide usage search, handing every match
// to sink in search order. The search stops early when sink returns false.
type UsageSearcher interface {
	RunUsageSearch(ctx context.Context, target *Element, sink Collector) error
}

// Documenter renders documentation.
type Documenter interface {
	// RenderDocumentation renders the documentation of el; token is the
	// raw token under the cursor and may be nil. An empty string means
	// there is nothing to show.
	RenderDocumentation(el, token *Element) (string, error)
	// Generation changes whenever indexed content changes.
	Generation() uint64
}

// Engine is the full set of semantic capabilities.
type Engine interface {
	Navigator
	DefinitionIndex
	DescriptorResolver
	DescriptorGraph
	UsageSearcher
	Documenter
}
