// Package session scopes editor bindings. An Editor pins a caret in one
// file on the serialized queue for the duration of exactly one operation and
// is released on every exit path.
package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/serial"
)

// ErrSessionActive is returned when a session is opened for a file that
// already has one open in the same call chain.
var ErrSessionActive = errors.New("session: editor already active for file")

// Editor is a caret bound to a file. It is only valid inside the WithEditor
// callback that received it.
type Editor struct {
	file     protocol.DocumentURI
	caret    int
	released atomic.Bool
}

// File returns the file the editor is bound to.
func (e *Editor) File() protocol.DocumentURI { return e.file }

// Caret returns the caret's byte offset.
func (e *Editor) Caret() int { return e.caret }

// MoveCaret positions the caret. Negative offsets clamp to zero.
func (e *Editor) MoveCaret(offset int) {
	if offset < 0 {
		offset = 0
	}
	e.caret = offset
}

// Released reports whether the session that owned the editor has ended.
func (e *Editor) Released() bool { return e.released.Load() }

type activeKey struct{}

type activeFiles struct {
	parent *activeFiles
	file   protocol.DocumentURI
}

func (a *activeFiles) contains(file protocol.DocumentURI) bool {
	for ; a != nil; a = a.parent {
		if a.file == file {
			return true
		}
	}
	return false
}

// WithEditor runs fn on q with an Editor for file whose caret sits at
// offset, and releases the editor when fn returns, fails, or panics. Results
// leave the session only through variables captured by fn.
func WithEditor(ctx context.Context, q *serial.Queue, file protocol.DocumentURI, offset int, fn func(ctx context.Context, ed *Editor) error) error {
	return q.Invoke(ctx, func(ctx context.Context) error {
		active, _ := ctx.Value(activeKey{}).(*activeFiles)
		if active.contains(file) {
			return ErrSessionActive
		}

		ed := &Editor{file: file}
		ed.MoveCaret(offset)
		defer ed.released.Store(true)

		ctx = context.WithValue(ctx, activeKey{}, &activeFiles{parent: active, file: file})
		return fn(ctx, ed)
	})
}
