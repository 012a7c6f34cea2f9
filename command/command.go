// Package command is the asynchronous command framework. A Command produces
// one typed result for an ExecutionContext; the Executor runs commands on a
// bounded pool of goroutines and hands the caller a Future right away.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
)

// ErrNoPosition is returned by Offset when the context carries no position.
var ErrNoPosition = errors.New("command: no position in execution context")

// Command is a unit of work bound to an ExecutionContext.
type Command[T any] interface {
	Execute(ctx context.Context, ec *ExecutionContext) (T, error)
}

// Func adapts a function to Command.
type Func[T any] func(ctx context.Context, ec *ExecutionContext) (T, error)

func (f Func[T]) Execute(ctx context.Context, ec *ExecutionContext) (T, error) {
	return f(ctx, ec)
}

// TextSource reads the current text of a file.
type TextSource interface {
	Read(uri protocol.DocumentURI) (document.Snapshot, error)
}

// ExecutionContext identifies the file and workspace a command targets,
// with an optional position and free-form parameters.
type ExecutionContext struct {
	File      protocol.DocumentURI
	Workspace protocol.DocumentURI
	Position  *protocol.Position
	Params    json.RawMessage

	texts TextSource

	offsetOnce sync.Once
	offset     int
	offsetErr  error
}

// NewExecutionContext creates a context. texts resolves file contents when
// the offset is first requested.
func NewExecutionContext(texts TextSource, file, workspace protocol.DocumentURI, pos *protocol.Position, params json.RawMessage) *ExecutionContext {
	return &ExecutionContext{
		File:      file,
		Workspace: workspace,
		Position:  pos,
		Params:    params,
		texts:     texts,
	}
}

// Offset returns the byte offset of Position in the file. It is computed
// once per context.
func (ec *ExecutionContext) Offset() (int, error) {
	ec.offsetOnce.Do(func() {
		if ec.Position == nil {
			ec.offsetErr = ErrNoPosition
			return
		}
		if ec.texts == nil {
			ec.offsetErr = errors.New("command: no text source")
			return
		}
		snap, err := ec.texts.Read(ec.File)
		if err != nil {
			ec.offsetErr = err
			return
		}
		ec.offset = document.OffsetAt(snap.Text, *ec.Position)
	})
	return ec.offset, ec.offsetErr
}
