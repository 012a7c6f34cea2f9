// Package definition resolves go-to-definition requests through an ordered
// list of strategies. The first strategy that yields locations wins.
package definition

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
)

// Request is the input every strategy sees.
type Request struct {
	File     protocol.DocumentURI
	Offset   int
	Language engine.Language
	Engine   engine.Engine
	Queue    *serial.Queue
}

// Strategy is one way of finding definitions.
type Strategy interface {
	Name() string
	// Applies reports whether the strategy is worth running for lang.
	Applies(lang engine.Language) bool
	// Attempt returns the locations found, or none. Engine access must go
	// through req.Queue.
	Attempt(ctx context.Context, req *Request) ([]protocol.Location, error)
}

// DefaultStrategies returns the standard resolution order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ReferenceStrategy{},
		SuperMethodStrategy{},
		DefinitionsSearchStrategy{},
		SuperDeclarationStrategy{},
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger strategy failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithStrategies replaces the default strategy list.
func WithStrategies(s ...Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

// Pipeline runs strategies in order against one engine.
type Pipeline struct {
	engine     engine.Engine
	queue      *serial.Queue
	logger     *slog.Logger
	strategies []Strategy
}

// New creates a pipeline over eng. All engine calls are made on q.
func New(eng engine.Engine, q *serial.Queue, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:     eng,
		queue:      q,
		logger:     slog.Default(),
		strategies: DefaultStrategies(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Find returns the definitions of the symbol at offset in file. It never
// returns nil: absence is the empty slice.
func (p *Pipeline) Find(ctx context.Context, file protocol.DocumentURI, offset int) []protocol.Location {
	req := &Request{
		File:   file,
		Offset: offset,
		Engine: p.engine,
		Queue:  p.queue,
	}
	err := p.queue.Invoke(ctx, func(context.Context) error {
		lang, err := p.engine.LanguageOf(file)
		req.Language = lang
		return err
	})
	if err != nil {
		p.logger.Debug("definition: language lookup failed", "file", file, "error", err)
		return []protocol.Location{}
	}

	for _, s := range p.strategies {
		if !s.Applies(req.Language) {
			continue
		}
		locs, err := s.Attempt(ctx, req)
		switch {
		case errors.Is(err, engine.ErrNoDescriptor), errors.Is(err, engine.ErrIndexNotReady):
			p.logger.Debug("definition: lookup stopped",
				"strategy", s.Name(),
				"file", file,
				"reason", err,
			)
			return []protocol.Location{}
		case err != nil:
			p.logger.Warn("definition: strategy failed",
				"strategy", s.Name(),
				"file", file,
				"offset", offset,
				"error", err,
			)
			continue
		}
		if len(locs) > 0 {
			p.logger.Debug("definition: resolved",
				"strategy", s.Name(),
				"file", file,
				"count", len(locs),
			)
			return locs
		}
	}
	return []protocol.Location{}
}

// Command adapts the pipeline to the command framework. It never fails; an
// execution context without a resolvable offset yields no locations.
func (p *Pipeline) Command() command.Command[[]protocol.Location] {
	return command.Func[[]protocol.Location](func(ctx context.Context, ec *command.ExecutionContext) ([]protocol.Location, error) {
		offset, err := ec.Offset()
		if err != nil {
			p.logger.Debug("definition: no offset", "file", ec.File, "error", err)
			return []protocol.Location{}, nil
		}
		return p.Find(ctx, ec.File, offset), nil
	})
}

// locations maps elements to valid, distinct locations in input order.
func locations(elements []*engine.Element) []protocol.Location {
	out := make([]protocol.Location, 0, len(elements))
	seen := make(map[protocol.Location]bool, len(elements))
	for _, el := range elements {
		if el == nil {
			continue
		}
		loc := el.Location()
		if !loc.Valid() || seen[loc] {
			continue
		}
		seen[loc] = true
		out = append(out, loc)
	}
	return out
}
