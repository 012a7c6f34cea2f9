package tsengine

import (
	"sort"

	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
)

func contains(start, end, offset int) bool { return start <= offset && offset <= end }

// declNamedAt returns the declaration whose name spans offset.
func (f *fileIndex) declNamedAt(offset int) *decl {
	for _, d := range f.decls {
		if contains(d.nameStart, d.nameEnd, offset) {
			return d
		}
	}
	return nil
}

// refAt returns the reference spanning offset. A reference starting at
// offset wins over one ending there.
func (f *fileIndex) refAt(offset int) (ref, bool) {
	var (
		found ref
		ok    bool
	)
	for _, r := range f.refs {
		if !contains(r.start, r.end, offset) {
			continue
		}
		if !ok || r.start == offset {
			found, ok = r, true
		}
	}
	return found, ok
}

// enclosing returns the innermost declaration containing offset whose kind
// passes keep.
func (f *fileIndex) enclosing(offset int, keep func(engine.ElementKind) bool) *decl {
	var best *decl
	for _, d := range f.decls {
		if !keep(d.el.Kind) || !contains(d.start, d.end, offset) {
			continue
		}
		if best == nil || d.end-d.start < best.end-best.start {
			best = d
		}
	}
	return best
}

// prefer narrows cands to those passing keep, unless none do.
func prefer(cands []*decl, keep func(*decl) bool) []*decl {
	var out []*decl
	for _, c := range cands {
		if keep(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

// resolve finds the declarations r in f may refer to. Resolution is by
// name: members prefer members, plain names prefer top-level declarations,
// and declarations from the same package win over the rest.
func (x *Index) resolve(f *fileIndex, r ref) []*decl {
	var cands []*decl
	for _, d := range x.names[r.name] {
		if d.file.lang == f.lang {
			cands = append(cands, d)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	cands = prefer(cands, func(d *decl) bool { return (d.el.Container != "") == r.member })
	cands = prefer(cands, func(d *decl) bool { return d.file.pkg == f.pkg })
	sorted := append([]*decl(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if (a.file == f) != (b.file == f) {
			return a.file == f
		}
		if a.file.uri != b.file.uri {
			return a.file.uri < b.file.uri
		}
		return a.start < b.start
	})
	return sorted
}

func elements(decls []*decl) []*engine.Element {
	out := make([]*engine.Element, 0, len(decls))
	for _, d := range decls {
		out = append(out, d.el)
	}
	return out
}

// ResolveReferenceAt resolves the reference under offset. Declaration
// names are not references and resolve to nothing.
func (x *Index) ResolveReferenceAt(uri protocol.DocumentURI, offset int) ([]*engine.Element, error) {
	f, err := x.file(uri)
	if err != nil {
		return nil, err
	}
	r, ok := f.refAt(offset)
	if !ok {
		return nil, nil
	}
	return elements(x.resolve(f, r)), nil
}

// ElementAt returns the identifier token at offset.
func (x *Index) ElementAt(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	f, err := x.file(uri)
	if err != nil {
		return nil, err
	}
	if d := f.declNamedAt(offset); d != nil {
		return f.element(d.el.Name, engine.KindIdentifier, d.nameStart, d.nameEnd), nil
	}
	if r, ok := f.refAt(offset); ok {
		return f.element(r.name, engine.KindIdentifier, r.start, r.end), nil
	}
	return nil, nil
}

// DeclarationAt returns the declaration named at offset.
func (x *Index) DeclarationAt(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	f, err := x.file(uri)
	if err != nil {
		return nil, err
	}
	if d := f.declNamedAt(offset); d != nil {
		return d.el, nil
	}
	return nil, nil
}

// EnclosingDeclaration returns the innermost declaration of one of kinds
// containing offset.
func (x *Index) EnclosingDeclaration(uri protocol.DocumentURI, offset int, kinds ...engine.ElementKind) (*engine.Element, error) {
	f, err := x.file(uri)
	if err != nil {
		return nil, err
	}
	d := f.enclosing(offset, func(k engine.ElementKind) bool {
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	})
	if d == nil {
		return nil, nil
	}
	return d.el, nil
}

// FindTargetElement returns the declaration named at offset, or the first
// declaration the reference at offset resolves to.
func (x *Index) FindTargetElement(uri protocol.DocumentURI, offset int) (*engine.Element, error) {
	d, err := x.targetDecl(uri, offset)
	if err != nil || d == nil {
		return nil, err
	}
	return d.el, nil
}

func (x *Index) targetDecl(uri protocol.DocumentURI, offset int) (*decl, error) {
	f, err := x.file(uri)
	if err != nil {
		return nil, err
	}
	if d := f.declNamedAt(offset); d != nil {
		return d, nil
	}
	if r, ok := f.refAt(offset); ok {
		if found := x.resolve(f, r); len(found) > 0 {
			return found[0], nil
		}
	}
	return nil, nil
}

// lookup finds the declaration an element stands for: a declaration
// element maps to itself, an identifier token to what it names or
// references.
func (x *Index) lookup(el *engine.Element) (ds []*decl, declSite bool, err error) {
	if el == nil {
		return nil, false, nil
	}
	f, err := x.file(el.URI)
	if err != nil {
		return nil, false, err
	}
	for _, d := range f.decls {
		if d.el == el || (d.el.Kind == el.Kind && d.el.Range == el.Range && d.el.Name == el.Name) {
			return []*decl{d}, true, nil
		}
	}
	offset := f.src.offset(el.NameRange.Start)
	if d := f.declNamedAt(offset); d != nil {
		return []*decl{d}, true, nil
	}
	if r, ok := f.refAt(offset); ok {
		return x.resolve(f, r), false, nil
	}
	return nil, false, nil
}

// FindDefinitionsOf returns the definitions of el. Abstract declarations
// and interfaces resolve to their implementations. At a declaration site
// only implementations are returned.
func (x *Index) FindDefinitionsOf(el *engine.Element) ([]*engine.Element, error) {
	targets, declSite, err := x.lookup(el)
	if err != nil {
		return nil, err
	}
	var out []*decl
	for _, t := range targets {
		switch {
		case t.file.lang == langGo && t.abstract():
			out = append(out, x.implementingMethods(t)...)
		case t.file.lang == langGo && t.el.Kind == engine.KindInterface:
			out = append(out, x.implementors(t)...)
		case !declSite:
			out = append(out, t)
		}
	}
	return elements(out), nil
}

// FindSuperMethodSignature returns the nearest method that method
// overrides and whose parameter count is compatible, or nil.
func (x *Index) FindSuperMethodSignature(method *engine.Element) (*engine.Element, error) {
	ds, _, err := x.lookup(method)
	if err != nil || len(ds) == 0 {
		return nil, err
	}
	m := ds[0]
	if m.el.Kind != engine.KindMethod {
		return nil, nil
	}
	for _, o := range x.overridden(m) {
		if compatible(m.el.Params, o.el.Params) {
			return o.el, nil
		}
	}
	return nil, nil
}

func compatible(a, b int) bool { return a == b || a < 0 || b < 0 }
