package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-lsp/sightline/serial"
	"github.com/gossip-lsp/sightline/session"
)

func newQueue(t *testing.T) *serial.Queue {
	t.Helper()
	q := serial.New(nil)
	t.Cleanup(q.Close)
	return q
}

func TestEditorPositionedAndReleased(t *testing.T) {
	q := newQueue(t)
	var kept *session.Editor
	var caret int
	err := session.WithEditor(context.Background(), q, "file:///a.go", 17, func(ctx context.Context, ed *session.Editor) error {
		assert.True(t, serial.OnQueue(ctx))
		assert.False(t, ed.Released())
		assert.Equal(t, "file:///a.go", string(ed.File()))
		caret = ed.Caret()
		kept = ed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 17, caret)
	assert.True(t, kept.Released())
}

func TestReleasedOnError(t *testing.T) {
	q := newQueue(t)
	sentinel := errors.New("inner failure")
	var kept *session.Editor
	err := session.WithEditor(context.Background(), q, "file:///a.go", 0, func(_ context.Context, ed *session.Editor) error {
		kept = ed
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, kept.Released())
}

func TestReleasedOnPanic(t *testing.T) {
	q := newQueue(t)
	var kept *session.Editor
	err := session.WithEditor(context.Background(), q, "file:///a.go", 0, func(_ context.Context, ed *session.Editor) error {
		kept = ed
		panic("engine blew up")
	})
	var pe *serial.PanicError
	require.ErrorAs(t, err, &pe)
	assert.True(t, kept.Released())

	// The queue is still usable for the next session.
	require.NoError(t, session.WithEditor(context.Background(), q, "file:///a.go", 0, func(context.Context, *session.Editor) error {
		return nil
	}))
}

func TestNestedSessionSameFileRejected(t *testing.T) {
	q := newQueue(t)
	err := session.WithEditor(context.Background(), q, "file:///a.go", 0, func(ctx context.Context, _ *session.Editor) error {
		return session.WithEditor(ctx, q, "file:///a.go", 3, func(context.Context, *session.Editor) error {
			t.Error("nested session must not run")
			return nil
		})
	})
	assert.ErrorIs(t, err, session.ErrSessionActive)
}

func TestNestedSessionOtherFileAllowed(t *testing.T) {
	q := newQueue(t)
	var inner int
	err := session.WithEditor(context.Background(), q, "file:///a.go", 0, func(ctx context.Context, _ *session.Editor) error {
		return session.WithEditor(ctx, q, "file:///b.go", 9, func(_ context.Context, ed *session.Editor) error {
			inner = ed.Caret()
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 9, inner)
}

func TestSequentialSessionsSameFile(t *testing.T) {
	q := newQueue(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, session.WithEditor(context.Background(), q, "file:///a.go", i, func(context.Context, *session.Editor) error {
			return nil
		}))
	}
}

func TestNegativeOffsetClamps(t *testing.T) {
	q := newQueue(t)
	require.NoError(t, session.WithEditor(context.Background(), q, "file:///a.go", -4, func(_ context.Context, ed *session.Editor) error {
		assert.Equal(t, 0, ed.Caret())
		return nil
	}))
}

func TestClosedQueue(t *testing.T) {
	q := serial.New(nil)
	q.Close()
	err := session.WithEditor(context.Background(), q, "file:///a.go", 0, func(context.Context, *session.Editor) error {
		return nil
	})
	assert.ErrorIs(t, err, serial.ErrClosed)
}
