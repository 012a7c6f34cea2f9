package engine

import (
	"fmt"

	"github.com/gossip-lsp/sightline/protocol"
)

// ElementKind classifies an Element.
type ElementKind int

const (
	KindIdentifier ElementKind = iota
	KindFunction
	KindMethod
	KindClass
	KindInterface
	KindProperty
	KindObject
	KindVariable
)

var kindNames = [...]string{
	KindIdentifier: "identifier",
	KindFunction:   "function",
	KindMethod:     "method",
	KindClass:      "class",
	KindInterface:  "interface",
	KindProperty:   "property",
	KindObject:     "object",
	KindVariable:   "variable",
}

func (k ElementKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Element is a node of the engine's source model: a declaration or a raw
// token.
type Element struct {
	URI       protocol.DocumentURI
	Name      string
	Kind      ElementKind
	Language  string
	Range     protocol.Range // whole element
	NameRange protocol.Range // name identifier; equals Range for tokens
	// Container names the enclosing type for methods and properties.
	Container string
	// Abstract marks declarations without a body, such as interface methods.
	Abstract bool
	// Params is the parameter count of callables, -1 when variadic.
	Params int
	// Signature is the declaration header as written in source.
	Signature string
}

func (e *Element) String() string {
	if e == nil {
		return "<nil>"
	}
	name := e.Name
	if e.Container != "" {
		name = e.Container + "." + name
	}
	return fmt.Sprintf("%s %s", e.Kind, name)
}

// IsClassLike reports whether e declares a type.
func (e *Element) IsClassLike() bool {
	switch e.Kind {
	case KindClass, KindInterface, KindObject:
		return true
	}
	return false
}

// IsCallable reports whether e declares a function or method.
func (e *Element) IsCallable() bool {
	return e.Kind == KindFunction || e.Kind == KindMethod
}

// NameIdentifier returns the name token of a declaration.
func (e *Element) NameIdentifier() *Element {
	return &Element{
		URI:       e.URI,
		Name:      e.Name,
		Kind:      KindIdentifier,
		Language:  e.Language,
		Range:     e.NameRange,
		NameRange: e.NameRange,
	}
}

// Location returns the source location of the element. Elements without a
// URI yield an invalid location.
func (e *Element) Location() protocol.Location {
	if e == nil {
		return protocol.Location{}
	}
	return protocol.Location{URI: e.URI, Range: e.Range}
}

// SameAs reports whether two elements denote the same source range.
func (e *Element) SameAs(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.URI == o.URI && e.Range == o.Range
}
