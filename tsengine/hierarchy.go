package tsengine

import (
	"fmt"

	"github.com/gossip-lsp/sightline/engine"
)

// Universal roots. Every Python class derives from object; every Go type
// satisfies any.
var rootNames = map[string]string{
	langGo:     "any",
	langPython: "object",
}

// objectMembers are the members every Python class inherits from object.
var objectMembers = map[string]bool{
	"__init__": true, "__new__": true, "__repr__": true, "__str__": true,
	"__eq__": true, "__ne__": true, "__hash__": true, "__getattribute__": true,
	"__setattr__": true, "__delattr__": true, "__format__": true, "__sizeof__": true,
}

// descriptor is the semantic view of a declaration. A nil decl marks the
// universal root type or one of its members.
type descriptor struct {
	kind engine.DescriptorKind
	name string
	decl *decl
}

func (d *descriptor) Kind() engine.DescriptorKind { return d.kind }
func (d *descriptor) Name() string                { return d.name }
func (d *descriptor) IsRoot() bool                { return d.decl == nil }

func describe(d *decl) *descriptor {
	kind := engine.DescriptorOther
	switch {
	case d.el.IsClassLike():
		kind = engine.DescriptorType
	case d.el.IsCallable(), d.el.Kind == engine.KindProperty:
		kind = engine.DescriptorCallable
	}
	return &descriptor{kind: kind, name: d.el.String(), decl: d}
}

func rootType(lang string) *descriptor {
	return &descriptor{kind: engine.DescriptorType, name: rootNames[lang]}
}

// typeNamed finds the type declaration called name, preferring pkg.
func (x *Index) typeNamed(name, lang, pkg string) *decl {
	var cands []*decl
	for _, d := range x.names[name] {
		if d.file.lang == lang && d.el.IsClassLike() {
			cands = append(cands, d)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	cands = prefer(cands, func(d *decl) bool { return d.file.pkg == pkg })
	return cands[0]
}

func (x *Index) owner(m *decl) *decl {
	if m.el.Container == "" {
		return nil
	}
	return x.typeNamed(m.el.Container, m.file.lang, m.file.pkg)
}

// member returns the method or property name declared directly on t.
func (x *Index) member(t *decl, name string) *decl {
	for _, d := range x.names[name] {
		if d.el.Container == t.el.Name && d.file.lang == t.file.lang && d.file.pkg == t.file.pkg &&
			(d.el.IsCallable() || d.el.Kind == engine.KindProperty) {
			return d
		}
	}
	return nil
}

// bases resolves the declared supertypes of t.
func (x *Index) bases(t *decl) []*decl {
	var out []*decl
	for _, name := range t.supers {
		if b := x.typeNamed(name, t.file.lang, t.file.pkg); b != nil && b != t {
			out = append(out, b)
		}
	}
	return out
}

// findMember looks for name on t, then depth-first through its bases.
func (x *Index) findMember(t *decl, name string, seen map[*decl]bool) *decl {
	if seen[t] {
		return nil
	}
	seen[t] = true
	if m := x.member(t, name); m != nil {
		return m
	}
	for _, b := range x.bases(t) {
		if m := x.findMember(b, name, seen); m != nil {
			return m
		}
	}
	return nil
}

// methodSet collects the methods of t, promoted ones included. Methods
// declared closer to t shadow promoted ones.
func (x *Index) methodSet(t *decl) map[string]*decl {
	set := make(map[string]*decl)
	seen := make(map[*decl]bool)
	queue := []*decl{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, f := range x.files {
			if f.lang != cur.file.lang || f.pkg != cur.file.pkg {
				continue
			}
			for _, d := range f.decls {
				if d.el.Kind == engine.KindMethod && d.el.Container == cur.el.Name {
					if _, ok := set[d.el.Name]; !ok {
						set[d.el.Name] = d
					}
				}
			}
		}
		queue = append(queue, x.bases(cur)...)
	}
	return set
}

// implements reports whether concrete type t has every method of iface.
// Empty interfaces are not considered: everything would implement them.
func (x *Index) implements(t, iface *decl) bool {
	if t == iface || t.el.Kind == engine.KindInterface || iface.el.Kind != engine.KindInterface {
		return false
	}
	want := x.methodSet(iface)
	if len(want) == 0 {
		return false
	}
	have := x.methodSet(t)
	for name, m := range want {
		h, ok := have[name]
		if !ok || h.abstract() || !compatible(h.el.Params, m.el.Params) {
			return false
		}
	}
	return true
}

// goTypes returns every Go type declaration in a stable order.
func (x *Index) goTypes() []*decl {
	var out []*decl
	for _, f := range x.sortedFiles() {
		if f.lang != langGo {
			continue
		}
		for _, d := range f.decls {
			if d.el.IsClassLike() && d.el.Container == "" {
				out = append(out, d)
			}
		}
	}
	return out
}

func (x *Index) implementors(iface *decl) []*decl {
	var out []*decl
	for _, t := range x.goTypes() {
		if x.implements(t, iface) {
			out = append(out, t)
		}
	}
	return out
}

// implementingMethods returns the concrete methods implementing the
// interface method m.
func (x *Index) implementingMethods(m *decl) []*decl {
	iface := x.owner(m)
	if iface == nil {
		return nil
	}
	var out []*decl
	for _, t := range x.implementors(iface) {
		if h := x.methodSet(t)[m.el.Name]; h != nil && !h.abstract() {
			out = append(out, h)
		}
	}
	return out
}

// interfacesOf returns the interfaces concrete type t implements.
func (x *Index) interfacesOf(t *decl) []*decl {
	var out []*decl
	for _, i := range x.goTypes() {
		if x.implements(t, i) {
			out = append(out, i)
		}
	}
	return out
}

// directOverrides returns what m directly overrides: for each direct
// supertype of its owner, the nearest declaration of the same name.
func (x *Index) directOverrides(m *decl) []*decl {
	owner := x.owner(m)
	if owner == nil {
		return nil
	}
	var out []*decl
	for _, b := range x.bases(owner) {
		if o := x.findMember(b, m.el.Name, map[*decl]bool{owner: true}); o != nil {
			out = append(out, o)
		}
	}
	if m.file.lang == langGo && m.el.Kind == engine.KindMethod {
		for _, i := range x.interfacesOf(owner) {
			if o := x.methodSet(i)[m.el.Name]; o != nil {
				out = append(out, o)
			}
		}
	}
	return out
}

// overridden returns every declaration m overrides, nearest first.
func (x *Index) overridden(m *decl) []*decl {
	var (
		out  []*decl
		seen = map[*decl]bool{m: true}
	)
	next := x.directOverrides(m)
	for len(next) > 0 {
		o := next[0]
		next = next[1:]
		if seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
		next = append(next, x.directOverrides(o)...)
	}
	return out
}

// ResolveDescriptor resolves a declaration to its descriptor. The index
// never analyses bodies, so both modes give the same answer.
func (x *Index) ResolveDescriptor(el *engine.Element, _ engine.ResolveMode) (engine.Descriptor, error) {
	ds, declSite, err := x.lookup(el)
	if err != nil {
		return nil, err
	}
	if len(ds) == 0 || !declSite {
		return nil, fmt.Errorf("%w: %s", engine.ErrNoDescriptor, el)
	}
	return describe(ds[0]), nil
}

func (x *Index) own(d engine.Descriptor) (*descriptor, error) {
	own, ok := d.(*descriptor)
	if !ok {
		return nil, fmt.Errorf("tsengine: foreign descriptor %T", d)
	}
	return own, nil
}

// DescriptorToDeclaration returns the declaration behind d, nil for roots.
func (x *Index) DescriptorToDeclaration(d engine.Descriptor) (*engine.Element, error) {
	own, err := x.own(d)
	if err != nil || own.decl == nil {
		return nil, err
	}
	return own.decl.el, nil
}

// Supertypes returns the declared supertypes of a type followed by the
// universal root. Go types also list the interfaces they implement.
func (x *Index) Supertypes(d engine.Descriptor) ([]engine.Descriptor, error) {
	own, err := x.own(d)
	if err != nil || own.decl == nil || own.kind != engine.DescriptorType {
		return nil, err
	}
	t := own.decl
	var out []engine.Descriptor
	seen := make(map[*decl]bool)
	add := func(b *decl) {
		if !seen[b] {
			seen[b] = true
			out = append(out, describe(b))
		}
	}
	for _, b := range x.bases(t) {
		add(b)
	}
	if t.file.lang == langGo {
		for _, i := range x.interfacesOf(t) {
			add(i)
		}
	}
	return append(out, rootType(t.file.lang)), nil
}

// DirectOverrides returns the members d directly overrides. Python members
// that only object declares yield root members.
func (x *Index) DirectOverrides(d engine.Descriptor) ([]engine.Descriptor, error) {
	own, err := x.own(d)
	if err != nil || own.decl == nil || own.kind != engine.DescriptorCallable {
		return nil, err
	}
	m := own.decl
	var out []engine.Descriptor
	for _, o := range x.directOverrides(m) {
		out = append(out, describe(o))
	}
	if len(out) == 0 && m.file.lang == langPython && m.el.Container != "" && objectMembers[m.el.Name] {
		out = append(out, &descriptor{kind: engine.DescriptorCallable, name: "object." + m.el.Name})
	}
	return out, nil
}
