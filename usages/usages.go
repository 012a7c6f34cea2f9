// Package usages aggregates the results of a workspace usage search into a
// list of locations.
package usages

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/session"
)

// Collector records every usage it is handed, in order.
type Collector struct {
	mu     sync.Mutex
	usages []engine.Usage
}

// Accept appends u and reports it as handled.
func (c *Collector) Accept(u engine.Usage) bool {
	c.mu.Lock()
	c.usages = append(c.usages, u)
	c.mu.Unlock()
	return true
}

// Usages returns the collected usages.
func (c *Collector) Usages() []engine.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.Usage(nil), c.usages...)
}

// Locations maps the collected usages to locations, dropping usages with no
// anchor element or no valid location. Order is preserved.
func (c *Collector) Locations() []protocol.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Location, 0, len(c.usages))
	for _, u := range c.usages {
		if u.Element == nil {
			continue
		}
		if loc := u.Element.Location(); loc.Valid() {
			out = append(out, loc)
		}
	}
	return out
}

// Finder runs usage searches.
type Finder struct {
	engine engine.Engine
	queue  *serial.Queue
	logger *slog.Logger
}

// NewFinder creates a finder over eng. Engine calls are made on q.
func NewFinder(eng engine.Engine, q *serial.Queue, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{engine: eng, queue: q, logger: logger}
}

// Find returns the locations of every usage of the symbol at offset. It
// never returns nil.
func (f *Finder) Find(ctx context.Context, file protocol.DocumentURI, offset int) []protocol.Location {
	var c Collector
	err := session.WithEditor(ctx, f.queue, file, offset, func(ctx context.Context, ed *session.Editor) error {
		target, err := f.engine.FindTargetElement(ed.File(), ed.Caret())
		if err != nil || target == nil {
			return err
		}
		return f.engine.RunUsageSearch(ctx, target, &c)
	})
	if err != nil {
		f.logger.Debug("usages: search failed", "file", file, "offset", offset, "error", err)
		return []protocol.Location{}
	}
	return c.Locations()
}

// Command adapts the finder to the command framework.
func (f *Finder) Command() command.Command[[]protocol.Location] {
	return command.Func[[]protocol.Location](func(ctx context.Context, ec *command.ExecutionContext) ([]protocol.Location, error) {
		offset, err := ec.Offset()
		if err != nil {
			return []protocol.Location{}, nil
		}
		return f.Find(ctx, ec.File, offset), nil
	})
}

var _ engine.Collector = (*Collector)(nil)
