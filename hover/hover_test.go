package hover

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/engine"
	"github.com/gossip-lsp/sightline/engine/enginetest"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/settings"
)

const file = protocol.DocumentURI("file:///ws/main.go")

func newAdapter(t *testing.T, fake *enginetest.Fake, opts ...Option) *Adapter {
	t.Helper()
	q := serial.New(slog.New(slog.DiscardHandler))
	t.Cleanup(q.Close)
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	a, err := New(fake, q, opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func documented(doc string) *enginetest.Fake {
	target := enginetest.Element(file, "Serve", engine.KindFunction, 3)
	token := &engine.Element{URI: file, Name: "Serve"}
	return &enginetest.Fake{
		Language: engine.Language{ID: "go"},
		TargetFn: func(protocol.DocumentURI, int) (*engine.Element, error) { return target, nil },
		ElementAtFn: func(protocol.DocumentURI, int) (*engine.Element, error) {
			return token, nil
		},
		DocumentFn: func(el, tok *engine.Element) (string, error) {
			if el != target || tok != token {
				return "", errors.New("unexpected elements")
			}
			return doc, nil
		},
	}
}

func TestHoverRendersDocumentation(t *testing.T) {
	a := newAdapter(t, documented("func Serve()\n\nServe runs the server."))

	got := a.Hover(context.Background(), file, 40)
	assert.Equal(t, protocol.MarkedString{Language: "go", Value: "func Serve()\n\nServe runs the server."}, got)
}

func TestHoverTagFromSettings(t *testing.T) {
	s := settings.Default()
	s.Hover.Languages = map[string]string{"go": "golang"}
	a := newAdapter(t, documented("doc"), WithTagFunc(s.HoverTag))
	assert.Equal(t, "golang", a.Hover(context.Background(), file, 0).Language)

	s.Hover.Language = "java"
	a = newAdapter(t, documented("doc"), WithTagFunc(s.HoverTag))
	assert.Equal(t, "java", a.Hover(context.Background(), file, 0).Language)
}

func TestHoverNeverFails(t *testing.T) {
	tests := []struct {
		name string
		fake *enginetest.Fake
	}{
		{"no target", &enginetest.Fake{Language: engine.Language{ID: "go"}}},
		{"index not ready", &enginetest.Fake{
			Language: engine.Language{ID: "go"},
			TargetFn: func(protocol.DocumentURI, int) (*engine.Element, error) {
				return nil, engine.ErrIndexNotReady
			},
		}},
		{"render error", func() *enginetest.Fake {
			f := documented("")
			f.DocumentFn = func(_, _ *engine.Element) (string, error) { return "partial", errors.New("broken") }
			return f
		}()},
		{"panic", &enginetest.Fake{
			Language: engine.Language{ID: "go"},
			TargetFn: func(protocol.DocumentURI, int) (*engine.Element, error) { panic("engine bug") },
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, tt.fake)
			got := a.Hover(context.Background(), file, 0)
			assert.Equal(t, protocol.MarkedString{Language: "go", Value: ""}, got)
		})
	}
}

func TestHoverUnknownDocument(t *testing.T) {
	a := newAdapter(t, &enginetest.Fake{LanguageErr: engine.ErrNoDocument})
	assert.Empty(t, a.Hover(context.Background(), file, 0).Value)
}

func TestHoverCachesByGeneration(t *testing.T) {
	fake := documented("first")
	renders := 0
	render := fake.DocumentFn
	fake.DocumentFn = func(el, tok *engine.Element) (string, error) {
		renders++
		return render(el, tok)
	}
	a := newAdapter(t, fake)

	assert.Equal(t, "first", a.Hover(context.Background(), file, 5).Value)
	a.cache.Wait()
	assert.Equal(t, "first", a.Hover(context.Background(), file, 5).Value)
	assert.Equal(t, 1, renders)

	fake.Gen.Add(1)
	a.Hover(context.Background(), file, 5)
	assert.Equal(t, 2, renders)
}

func TestHoverWithoutCache(t *testing.T) {
	a := newAdapter(t, documented("doc"), WithCacheSize(0))
	assert.Nil(t, a.cache)
	assert.Equal(t, "doc", a.Hover(context.Background(), file, 0).Value)
}

func TestHoverTinyCache(t *testing.T) {
	for _, size := range []int64{1, 64, 99} {
		a := newAdapter(t, documented("doc"), WithCacheSize(size))
		require.NotNil(t, a.cache, "cache size %d", size)
		assert.Equal(t, "doc", a.Hover(context.Background(), file, 0).Value)
	}
}
