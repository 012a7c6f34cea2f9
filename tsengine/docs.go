package tsengine

import (
	"context"
	"strings"

	"github.com/gossip-lsp/sightline/engine"
)

// RenderDocumentation renders the header and doc comment of the
// declaration el stands for. token is consulted when el is nil.
func (x *Index) RenderDocumentation(el, token *engine.Element) (string, error) {
	if el == nil {
		el = token
	}
	ds, _, err := x.lookup(el)
	if err != nil || len(ds) == 0 {
		return "", err
	}
	d := ds[0]
	var b strings.Builder
	b.WriteString(d.el.Signature)
	if d.el.Signature == "" {
		b.WriteString(d.el.String())
	}
	if d.doc != "" {
		b.WriteString("\n\n")
		b.WriteString(d.doc)
	}
	return b.String(), nil
}

// RunUsageSearch hands sink every reference resolving to target, file by
// file in URI order.
func (x *Index) RunUsageSearch(ctx context.Context, target *engine.Element, sink engine.Collector) error {
	ds, _, err := x.lookup(target)
	if err != nil || len(ds) == 0 {
		return err
	}
	want := ds[0]
	for _, f := range x.sortedFiles() {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, r := range f.refs {
			if r.name != want.el.Name {
				continue
			}
			for _, d := range x.resolve(f, r) {
				if d != want {
					continue
				}
				u := engine.Usage{Element: f.element(r.name, engine.KindIdentifier, r.start, r.end)}
				if !sink.Accept(u) {
					return nil
				}
				break
			}
		}
	}
	return nil
}
