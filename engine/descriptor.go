package engine

// DescriptorKind classifies a Descriptor.
type DescriptorKind int

const (
	DescriptorOther DescriptorKind = iota
	DescriptorType
	DescriptorCallable
)

// ResolveMode selects how much of a declaration is analysed when resolving
// its descriptor.
type ResolveMode int

const (
	// ResolvePartial resolves signatures and supertypes but not bodies.
	ResolvePartial ResolveMode = iota
	ResolveFull
)

// Descriptor is the semantic model of a declaration.
type Descriptor interface {
	Kind() DescriptorKind
	Name() string
	// IsRoot reports whether the descriptor is the universal root type or a
	// member declared on it.
	IsRoot() bool
}

// DescriptorGraph traverses the type and override hierarchy.
type DescriptorGraph interface {
	// Supertypes returns the declared supertypes of a type descriptor.
	Supertypes(d Descriptor) ([]Descriptor, error)
	// DirectOverrides returns the members a callable directly overrides,
	// one hop up the chain.
	DirectOverrides(d Descriptor) ([]Descriptor, error)
}
