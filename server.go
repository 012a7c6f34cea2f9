package sightline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/jsonrpc"
	mw "github.com/gossip-lsp/sightline/middleware"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/treesitter"
)

// ErrExitWithoutShutdown is returned by Serve when the client sent exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("sightline: exit before shutdown")

// Server registers handlers, manages the LSP lifecycle and dispatches
// incoming messages.
type Server struct {
	name    string
	version string
	logger  *slog.Logger

	// connection and client proxy (set during Serve)
	conn   *jsonrpc.Conn
	client *ClientProxy

	docStore  *document.Store
	tsManager *treesitter.Manager

	// config system (nil if not enabled)
	configHolder configHolder

	middlewares []mw.Middleware
	workers     int

	mu               sync.RWMutex
	handlers         map[string]interface{}
	rawHandlers      map[string]RawHandler
	rawNotifHandlers map[string]RawNotificationHandler
	commands         map[string]CommandHandler
	closers          []func()

	// workspace state (populated during initialize)
	rootURI          *protocol.DocumentURI
	workspaceFolders []protocol.WorkspaceFolder
	clientCaps       protocol.ClientCapabilities
	initOptions      json.RawMessage

	initialized atomic.Bool
	shutdown    atomic.Bool
	exited      atomic.Bool
}

// NewServer creates a server with the given name and version.
func NewServer(name, version string, opts ...Option) *Server {
	s := &Server{
		name:             name,
		version:          version,
		logger:           slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		handlers:         make(map[string]interface{}),
		rawHandlers:      make(map[string]RawHandler),
		rawNotifHandlers: make(map[string]RawNotificationHandler),
		commands:         make(map[string]CommandHandler),
		docStore:         document.NewStore(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// --- Handler registration ---

func (s *Server) OnHover(h HoverHandler)           { s.register(protocol.MethodHover, h) }
func (s *Server) OnDefinition(h DefinitionHandler) { s.register(protocol.MethodDefinition, h) }
func (s *Server) OnReferences(h ReferencesHandler) { s.register(protocol.MethodReferences, h) }

// Notification handlers
func (s *Server) OnInitialized(h InitializedHandler) { s.register(protocol.MethodInitialized, h) }
func (s *Server) OnDidOpen(h DidOpenHandler)         { s.register(protocol.MethodDidOpen, h) }
func (s *Server) OnDidChange(h DidChangeHandler)     { s.register(protocol.MethodDidChange, h) }
func (s *Server) OnDidClose(h DidCloseHandler)       { s.register(protocol.MethodDidClose, h) }
func (s *Server) OnDidSave(h DidSaveHandler)         { s.register(protocol.MethodDidSave, h) }
func (s *Server) OnDidChangeConfiguration(h DidChangeConfigurationHandler) {
	s.register(protocol.MethodDidChangeConfiguration, h)
}
func (s *Server) OnDidChangeWatchedFiles(h DidChangeWatchedFilesHandler) {
	s.register(protocol.MethodDidChangeWatchedFiles, h)
}
func (s *Server) OnDidChangeWorkspaceFolders(h DidChangeWorkspaceFoldersHandler) {
	s.register(protocol.MethodDidChangeWorkspaceFolders, h)
}

// HandleCommand registers a workspace/executeCommand command. Registered
// names are advertised in the server capabilities.
func (s *Server) HandleCommand(name string, h CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[name] = h
}

// HandleRequest registers a raw handler for a custom or unhandled method.
func (s *Server) HandleRequest(method string, h RawHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawHandlers[method] = h
}

// HandleNotification registers a raw handler for a custom or unhandled notification.
func (s *Server) HandleNotification(method string, h RawNotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawNotifHandlers[method] = h
}

// OnClose registers fn to run when Serve returns.
func (s *Server) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
}

// TreeSitter returns the tree-sitter Manager, or nil if tree-sitter is not enabled.
func (s *Server) TreeSitter() *treesitter.Manager { return s.tsManager }

// Documents returns the document store.
func (s *Server) Documents() *document.Store { return s.docStore }

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Client returns the proxy for calls to the client, or nil before Serve.
func (s *Server) Client() *ClientProxy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Conn returns the JSON-RPC connection, or nil before Serve() is called.
func (s *Server) Conn() *jsonrpc.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Server) register(method string, handler interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

func (s *Server) getHandler(method string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[method]
	return h, ok
}

// dispatch routes incoming requests to the registered handlers.
func (s *Server) dispatch(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
	sctx := newContext(ctx, s)

	switch method {
	case protocol.MethodInitialize:
		return s.handleInitialize(sctx, params)
	case protocol.MethodShutdown:
		return s.handleShutdown(sctx)
	}

	if !s.initialized.Load() {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeServerNotInitialized, Message: "server not initialized"}
	}
	if s.shutdown.Load() {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "server is shutting down"}
	}

	if method == protocol.MethodExecuteCommand {
		return s.executeCommand(sctx, params)
	}
	return s.dispatchToHandler(sctx, method, params)
}

// dispatchNotification handles JSON-RPC notifications.
func (s *Server) dispatchNotification(ctx context.Context, method string, params jsonrpc.RawMessage) {
	sctx := newContext(ctx, s)

	switch method {
	case protocol.MethodExit:
		s.logger.Info("received exit notification")
		s.exited.Store(true)
		if conn := s.Conn(); conn != nil {
			conn.Close()
		}
		return
	case protocol.MethodSetTrace:
		return
	}

	if !s.initialized.Load() {
		return
	}

	s.dispatchNotificationToHandler(sctx, method, params)
}

func (s *Server) handleInitialize(ctx *Context, params jsonrpc.RawMessage) (interface{}, error) {
	if s.initialized.Load() {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: "server already initialized"}
	}
	p, err := decode[protocol.InitializeParams](params)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.rootURI = p.RootURI
	s.workspaceFolders = p.WorkspaceFolders
	s.clientCaps = p.Capabilities
	if p.InitializationOptions != nil {
		if raw, err := json.Marshal(p.InitializationOptions); err == nil {
			s.initOptions = raw
		}
	}
	if len(s.workspaceFolders) == 0 && s.rootURI != nil {
		s.workspaceFolders = []protocol.WorkspaceFolder{
			{URI: *s.rootURI, Name: uriBasename(string(*s.rootURI))},
		}
	}
	folders := s.workspaceFolders
	initOptions := s.initOptions
	s.mu.Unlock()

	caps := s.buildCapabilities()
	s.initialized.Store(true)

	if s.configHolder != nil {
		root := "."
		if len(folders) > 0 {
			root = document.PathFromURI(folders[0].URI)
		}
		if err := s.configHolder.start(s.logger, root, initOptions); err != nil {
			s.logger.Warn("config failed to start", "root", root, "error", err)
		}
	}

	s.logger.Info("server initialized",
		"name", s.name,
		"version", s.version,
		"workspaceFolders", len(folders),
	)

	return &protocol.InitializeResult{
		Capabilities: caps,
		ServerInfo: &protocol.ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil
}

func uriBasename(uri string) string {
	s := strings.TrimRight(uri, "/")
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func (s *Server) handleShutdown(_ *Context) (interface{}, error) {
	s.shutdown.Store(true)
	s.logger.Info("server shutting down")
	return nil, nil
}

func (s *Server) dispatchToHandler(ctx *Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
	if h, ok := s.getHandler(method); ok {
		return callHandler(ctx, h, method, params)
	}

	s.mu.RLock()
	rh, ok := s.rawHandlers[method]
	s.mu.RUnlock()
	if ok {
		return rh(ctx, params)
	}

	return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

func (s *Server) executeCommand(ctx *Context, params jsonrpc.RawMessage) (interface{}, error) {
	p, err := decode[protocol.ExecuteCommandParams](params)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	h, ok := s.commands[p.Command]
	s.mu.RUnlock()
	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown command: %s", p.Command)}
	}
	return h(ctx, p.Arguments)
}

func (s *Server) dispatchNotificationToHandler(ctx *Context, method string, params jsonrpc.RawMessage) {
	switch method {
	case protocol.MethodDidOpen:
		if p, err := decode[protocol.DidOpenTextDocumentParams](params); err == nil {
			s.docStore.Open(p)
		}
	case protocol.MethodDidChange:
		if p, err := decode[protocol.DidChangeTextDocumentParams](params); err == nil {
			s.docStore.Change(p)
		}
	case protocol.MethodDidClose:
		if p, err := decode[protocol.DidCloseTextDocumentParams](params); err == nil {
			s.docStore.Close(p)
		}
	case protocol.MethodDidChangeConfiguration:
		if p, err := decode[protocol.DidChangeConfigurationParams](params); err == nil && s.configHolder != nil {
			raw, _ := json.Marshal(p.Settings)
			if err := s.configHolder.setOverlay(raw); err != nil {
				s.logger.Warn("editor settings rejected", "error", err)
			}
		}
	case protocol.MethodDidChangeWorkspaceFolders:
		if p, err := decode[protocol.DidChangeWorkspaceFoldersParams](params); err == nil {
			s.handleWorkspaceFolderChange(p.Event)
		}
	}

	if h, ok := s.getHandler(method); ok {
		if _, err := callHandler(ctx, h, method, params); err != nil {
			s.logger.Warn("notification handler failed", "method", method, "error", err)
		}
		return
	}

	s.mu.RLock()
	rh, ok := s.rawNotifHandlers[method]
	s.mu.RUnlock()
	if ok {
		rh(ctx, params)
	}
}

func (s *Server) handleWorkspaceFolderChange(event protocol.WorkspaceFoldersChangeEvent) {
	s.mu.Lock()
	for _, removed := range event.Removed {
		for i, f := range s.workspaceFolders {
			if f.URI == removed.URI {
				s.workspaceFolders = append(s.workspaceFolders[:i], s.workspaceFolders[i+1:]...)
				break
			}
		}
	}
	s.workspaceFolders = append(s.workspaceFolders, event.Added...)
	s.mu.Unlock()

	s.logger.Info("workspace folders changed",
		"added", len(event.Added),
		"removed", len(event.Removed),
	)
}

// Folders returns a copy of the current workspace folders.
func (s *Server) Folders() []protocol.WorkspaceFolder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.WorkspaceFolder(nil), s.workspaceFolders...)
}

func decode[P any](params jsonrpc.RawMessage) (*P, error) {
	var p P
	if len(params) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	return &p, nil
}

// callHandler decodes params for the handler's type and calls it.
func callHandler(ctx *Context, handler interface{}, method string, params jsonrpc.RawMessage) (interface{}, error) {
	switch h := handler.(type) {
	case HoverHandler:
		p, err := decode[protocol.HoverParams](params)
		if err != nil {
			return nil, err
		}
		return h(ctx, p)

	case DefinitionHandler:
		p, err := decode[protocol.DefinitionParams](params)
		if err != nil {
			return nil, err
		}
		return h(ctx, p)

	case ReferencesHandler:
		p, err := decode[protocol.ReferenceParams](params)
		if err != nil {
			return nil, err
		}
		return h(ctx, p)

	// Notification handlers
	case InitializedHandler:
		return nil, h(ctx)

	case DidOpenHandler:
		p, err := decode[protocol.DidOpenTextDocumentParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidChangeHandler:
		p, err := decode[protocol.DidChangeTextDocumentParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidCloseHandler:
		p, err := decode[protocol.DidCloseTextDocumentParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidSaveHandler:
		p, err := decode[protocol.DidSaveTextDocumentParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidChangeConfigurationHandler:
		p, err := decode[protocol.DidChangeConfigurationParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidChangeWatchedFilesHandler:
		p, err := decode[protocol.DidChangeWatchedFilesParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)

	case DidChangeWorkspaceFoldersHandler:
		p, err := decode[protocol.DidChangeWorkspaceFoldersParams](params)
		if err != nil {
			return nil, err
		}
		return nil, h(ctx, p)
	}
	return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("no handler for method: %s", method)}
}
