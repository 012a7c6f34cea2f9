package definition

import (
	"context"

	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/session"
)

// ReferenceStrategy resolves the reference under the caret directly.
type ReferenceStrategy struct{}

func (ReferenceStrategy) Name() string                 { return "reference" }
func (ReferenceStrategy) Applies(engine.Language) bool { return true }

func (ReferenceStrategy) Attempt(ctx context.Context, req *Request) ([]protocol.Location, error) {
	var targets []*engine.Element
	err := session.WithEditor(ctx, req.Queue, req.File, req.Offset, func(_ context.Context, ed *session.Editor) error {
		var err error
		targets, err = req.Engine.ResolveReferenceAt(ed.File(), ed.Caret())
		return err
	})
	if err != nil {
		return nil, err
	}
	return locations(targets), nil
}

// SuperMethodStrategy jumps from an overriding method to the method it
// overrides.
type SuperMethodStrategy struct{}

func (SuperMethodStrategy) Name() string { return "super-method" }

func (SuperMethodStrategy) Applies(lang engine.Language) bool { return lang.SupportsOverriding }

func (SuperMethodStrategy) Attempt(ctx context.Context, req *Request) ([]protocol.Location, error) {
	var super *engine.Element
	err := req.Queue.Invoke(ctx, func(context.Context) error {
		decl, err := req.Engine.DeclarationAt(req.File, req.Offset)
		if err != nil || decl == nil || decl.Kind != engine.KindMethod {
			return err
		}
		super, err = req.Engine.FindSuperMethodSignature(decl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return locations([]*engine.Element{super}), nil
}

// DefinitionsSearchStrategy asks the index for every definition of the
// element at the offset, implementors of abstract declarations included.
type DefinitionsSearchStrategy struct{}

func (DefinitionsSearchStrategy) Name() string { return "definitions-search" }

func (DefinitionsSearchStrategy) Applies(lang engine.Language) bool { return lang.IndirectDefinitions }

func (DefinitionsSearchStrategy) Attempt(ctx context.Context, req *Request) ([]protocol.Location, error) {
	var defs []*engine.Element
	err := req.Queue.Invoke(ctx, func(context.Context) error {
		el, err := req.Engine.ElementAt(req.File, req.Offset)
		if err != nil || el == nil {
			return err
		}
		found, err := req.Engine.FindDefinitionsOf(el)
		if err != nil {
			return err
		}
		for _, d := range found {
			if d != nil && d.IsClassLike() {
				d = d.NameIdentifier()
			}
			defs = append(defs, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locations(defs), nil
}

// declarationKinds are the declarations SuperDeclarationStrategy starts from.
var declarationKinds = []engine.ElementKind{
	engine.KindFunction,
	engine.KindMethod,
	engine.KindClass,
	engine.KindInterface,
	engine.KindProperty,
	engine.KindObject,
}

// SuperDeclarationStrategy navigates from the enclosing declaration to its
// supertypes, or to the members it directly overrides.
type SuperDeclarationStrategy struct{}

func (SuperDeclarationStrategy) Name() string { return "super-declaration" }

func (SuperDeclarationStrategy) Applies(lang engine.Language) bool { return lang.IndirectDefinitions }

func (SuperDeclarationStrategy) Attempt(ctx context.Context, req *Request) ([]protocol.Location, error) {
	var decls []*engine.Element
	err := req.Queue.Invoke(ctx, func(context.Context) error {
		decl, err := req.Engine.EnclosingDeclaration(req.File, req.Offset, declarationKinds...)
		if err != nil || decl == nil {
			return err
		}
		d, err := req.Engine.ResolveDescriptor(decl, engine.ResolvePartial)
		if err != nil {
			return err
		}

		var related []engine.Descriptor
		switch d.Kind() {
		case engine.DescriptorType:
			related, err = req.Engine.Supertypes(d)
		case engine.DescriptorCallable:
			related, err = req.Engine.DirectOverrides(d)
		default:
			return nil
		}
		if err != nil {
			return err
		}

		for _, r := range related {
			if r == nil || r.IsRoot() {
				continue
			}
			el, err := req.Engine.DescriptorToDeclaration(r)
			if err != nil {
				return err
			}
			decls = append(decls, el)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locations(decls), nil
}
