package engine

// Usage is one match of a usage search. Element may be nil when the match
// has no resolvable source anchor.
type Usage struct {
	Element *Element
}

// Collector receives usages pushed by a search. Accept reports whether the
// usage was handled; returning false stops the search.
type Collector interface {
	Accept(u Usage) bool
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(Usage) bool

func (f CollectorFunc) Accept(u Usage) bool { return f(u) }
