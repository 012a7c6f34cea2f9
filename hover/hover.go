// Package hover renders documentation for the symbol under the cursor.
package hover

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/gossip-lsp/sightline/command"
	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
)

// TagFunc picks the code-block language tag for a file's language id.
type TagFunc func(languageID string) string

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithTagFunc sets how language tags are chosen. The default tags text
// with the file's own language id.
func WithTagFunc(fn TagFunc) Option {
	return func(a *Adapter) { a.tag = fn }
}

// WithCacheSize bounds the rendered-documentation cache in bytes. Zero
// disables caching.
func WithCacheSize(maxCost int64) Option {
	return func(a *Adapter) { a.cacheSize = maxCost }
}

// Adapter answers hover requests. It never fails: anything that goes wrong
// yields empty text.
type Adapter struct {
	engine    engine.Engine
	queue     *serial.Queue
	logger    *slog.Logger
	tag       TagFunc
	cacheSize int64
	cache     *ristretto.Cache[string, string]
}

// New creates an adapter over eng. Engine calls are made on q.
func New(eng engine.Engine, q *serial.Queue, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		engine:    eng,
		queue:     q,
		logger:    slog.Default(),
		tag:       func(id string) string { return id },
		cacheSize: 8 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cacheSize > 0 {
		c, err := ristretto.NewCache(&ristretto.Config[string, string]{
			NumCounters: max(a.cacheSize/10, 1),
			MaxCost:     a.cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("hover: create cache: %w", err)
		}
		a.cache = c
	}
	return a, nil
}

// Hover returns the documentation of the symbol at offset in file, tagged
// for the file's language.
func (a *Adapter) Hover(ctx context.Context, file protocol.DocumentURI, offset int) protocol.MarkedString {
	var (
		langID string
		text   string
	)
	err := a.queue.Invoke(ctx, func(context.Context) error {
		lang, err := a.engine.LanguageOf(file)
		if err != nil {
			return err
		}
		langID = lang.ID

		key := cacheKey(file, offset, a.engine.Generation())
		if a.cache != nil {
			if v, ok := a.cache.Get(key); ok {
				text = v
				return nil
			}
		}

		target, err := a.engine.FindTargetElement(file, offset)
		if err != nil || target == nil {
			return err
		}
		token, err := a.engine.ElementAt(file, offset)
		if err != nil {
			return err
		}
		text, err = a.engine.RenderDocumentation(target, token)
		if err != nil {
			text = ""
			return err
		}
		if a.cache != nil {
			a.cache.Set(key, text, int64(len(text))+1)
		}
		return nil
	})
	if err != nil {
		a.logger.Debug("hover: no documentation", "file", file, "offset", offset, "error", err)
	}
	return protocol.MarkedString{Language: a.tag(langID), Value: text}
}

// Command adapts the adapter to the command framework.
func (a *Adapter) Command() command.Command[protocol.MarkedString] {
	return command.Func[protocol.MarkedString](func(ctx context.Context, ec *command.ExecutionContext) (protocol.MarkedString, error) {
		offset, err := ec.Offset()
		if err != nil {
			return protocol.MarkedString{Language: a.tag(""), Value: ""}, nil
		}
		return a.Hover(ctx, ec.File, offset), nil
	})
}

// Close releases the cache.
func (a *Adapter) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
}

func cacheKey(file protocol.DocumentURI, offset int, generation uint64) string {
	return fmt.Sprintf("%s#%d@%d", file, offset, generation)
}
