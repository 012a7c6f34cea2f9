package sightline

import (
	"encoding/json"

	"github.com/gossip-lsp/sightline/protocol"
)

// RawHandler processes a JSON-RPC request with raw params. Use HandleRequest
// to register these for custom methods such as the build protocol.
type RawHandler func(ctx *Context, params json.RawMessage) (interface{}, error)

// RawNotificationHandler processes a JSON-RPC notification with raw params.
type RawNotificationHandler func(ctx *Context, params json.RawMessage)

// CommandHandler runs one workspace/executeCommand command.
type CommandHandler func(ctx *Context, args []json.RawMessage) (interface{}, error)

// Handler function types for each LSP method.
// Request handlers return a result and an error.
// Notification handlers return only an error.

// Lifecycle
type InitializedHandler func(ctx *Context) error

// Text document sync
type DidOpenHandler func(ctx *Context, params *protocol.DidOpenTextDocumentParams) error
type DidChangeHandler func(ctx *Context, params *protocol.DidChangeTextDocumentParams) error
type DidCloseHandler func(ctx *Context, params *protocol.DidCloseTextDocumentParams) error
type DidSaveHandler func(ctx *Context, params *protocol.DidSaveTextDocumentParams) error

// Language features
type HoverHandler func(ctx *Context, params *protocol.HoverParams) (*protocol.Hover, error)
type DefinitionHandler func(ctx *Context, params *protocol.DefinitionParams) ([]protocol.Location, error)
type ReferencesHandler func(ctx *Context, params *protocol.ReferenceParams) ([]protocol.Location, error)

// Workspace notifications
type DidChangeConfigurationHandler func(ctx *Context, params *protocol.DidChangeConfigurationParams) error
type DidChangeWatchedFilesHandler func(ctx *Context, params *protocol.DidChangeWatchedFilesParams) error
type DidChangeWorkspaceFoldersHandler func(ctx *Context, params *protocol.DidChangeWorkspaceFoldersParams) error
