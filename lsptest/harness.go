// Package lsptest provides testing utilities for sightline servers. It
// includes an in-memory client that talks to a server without network I/O,
// plus assertion helpers for common LSP patterns.
package lsptest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gossip-lsp/sightline"
	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/jsonrpc"
	"github.com/gossip-lsp/sightline/protocol"
	"github.com/gossip-lsp/sightline/transport"
)

// Client is a test LSP client that communicates with a server over an
// in-memory transport. It provides typed helper methods for common LSP requests.
type Client struct {
	t    testing.TB
	conn *jsonrpc.Conn
	stop func()
	done chan error

	// Capabilities is what the server advertised during initialize.
	Capabilities protocol.ServerCapabilities

	mu            sync.Mutex
	notifications []Notification
}

// Notification is a message the server sent to the client.
type Notification struct {
	Method string
	Params json.RawMessage
}

// ClientOption configures NewClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	folders []protocol.WorkspaceFolder
	options interface{}
}

// WithWorkspace opens dir as a workspace folder during initialize.
func WithWorkspace(dir string) ClientOption {
	return func(c *clientConfig) {
		c.folders = append(c.folders, protocol.WorkspaceFolder{
			URI:  document.URIFromPath(dir),
			Name: dir,
		})
	}
}

// WithInitializationOptions sends opts as initializationOptions.
func WithInitializationOptions(opts interface{}) ClientOption {
	return func(c *clientConfig) { c.options = opts }
}

// NewClient creates a test client connected to the given server and
// initializes it. The server runs in a background goroutine and is stopped
// when the test completes.
func NewClient(t testing.TB, s *sightline.Server, opts ...ClientOption) *Client {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	clientTransport, serverTransport := transport.MemoryPipe()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		t:    t,
		stop: cancel,
		done: make(chan error, 1),
	}

	go func() {
		c.done <- sightline.Serve(ctx, s, sightline.WithTransport(serverTransport))
	}()

	codec := jsonrpc.NewCodec(clientTransport, clientTransport)
	c.conn = jsonrpc.NewConn(codec, func(ctx context.Context, method string, params jsonrpc.RawMessage) (interface{}, error) {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "client does not handle requests"}
	}, func(ctx context.Context, method string, params jsonrpc.RawMessage) {
		c.mu.Lock()
		c.notifications = append(c.notifications, Notification{Method: method, Params: params})
		c.mu.Unlock()
	})

	go func() {
		_ = c.conn.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		c.conn.Close()
		clientTransport.Close()
	})

	c.initialize(cfg)
	return c
}

func (c *Client) initialize(cfg clientConfig) {
	c.t.Helper()
	params := &protocol.InitializeParams{
		Capabilities:          protocol.ClientCapabilities{},
		WorkspaceFolders:      cfg.folders,
		InitializationOptions: cfg.options,
	}
	var result protocol.InitializeResult
	c.call(protocol.MethodInitialize, params, &result)
	c.notify(protocol.MethodInitialized, &protocol.InitializedParams{})
	c.Capabilities = result.Capabilities
}

// Open sends a textDocument/didOpen notification.
func (c *Client) Open(uri, languageID, text string) {
	c.t.Helper()
	c.notify(protocol.MethodDidOpen, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentURI(uri),
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
	// Give the server a moment to process
	time.Sleep(10 * time.Millisecond)
}

// Change sends a textDocument/didChange notification with full content replacement.
func (c *Client) Change(uri string, version int32, text string) {
	c.t.Helper()
	c.notify(protocol.MethodDidChange, &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
	time.Sleep(10 * time.Millisecond)
}

// Close sends a textDocument/didClose notification.
func (c *Client) Close(uri string) {
	c.t.Helper()
	c.notify(protocol.MethodDidClose, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
	})
}

// ChangeConfiguration sends workspace/didChangeConfiguration.
func (c *Client) ChangeConfiguration(settings interface{}) {
	c.t.Helper()
	c.notify(protocol.MethodDidChangeConfiguration, &protocol.DidChangeConfigurationParams{Settings: settings})
	time.Sleep(10 * time.Millisecond)
}

func positionParams(uri string, pos protocol.Position) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentURI(uri)},
		Position:     pos,
	}
}

// Hover sends a textDocument/hover request. A null result yields nil.
func (c *Client) Hover(uri string, pos protocol.Position) (*protocol.Hover, error) {
	c.t.Helper()
	var result *protocol.Hover
	err := c.callErr(protocol.MethodHover, &protocol.HoverParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	}, &result)
	return result, err
}

// Definition sends a textDocument/definition request.
func (c *Client) Definition(uri string, pos protocol.Position) ([]protocol.Location, error) {
	c.t.Helper()
	var result []protocol.Location
	err := c.callErr(protocol.MethodDefinition, &protocol.DefinitionParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	}, &result)
	return result, err
}

// References sends a textDocument/references request.
func (c *Client) References(uri string, pos protocol.Position) ([]protocol.Location, error) {
	c.t.Helper()
	var result []protocol.Location
	err := c.callErr(protocol.MethodReferences, &protocol.ReferenceParams{
		TextDocumentPositionParams: positionParams(uri, pos),
	}, &result)
	return result, err
}

// BuildProject sends a sightline/buildProject request.
func (c *Client) BuildProject(p protocol.BuildProjectParams) (protocol.BuildProjectResult, error) {
	c.t.Helper()
	var result protocol.BuildProjectResult
	err := c.callErr(protocol.MethodBuildProject, &p, &result)
	return result, err
}

// ExecuteCommand sends a workspace/executeCommand request, marshalling
// each argument.
func (c *Client) ExecuteCommand(command string, args []interface{}, result interface{}) error {
	c.t.Helper()
	p := protocol.ExecuteCommandParams{Command: command}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		p.Arguments = append(p.Arguments, raw)
	}
	return c.callErr(protocol.MethodExecuteCommand, &p, result)
}

// Notifications returns the notifications received so far with the given
// method, oldest first.
func (c *Client) Notifications(method string) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notification
	for _, n := range c.notifications {
		if n.Method == method {
			out = append(out, n)
		}
	}
	return out
}

// WaitForNotification polls until a notification with the given method
// satisfies match (nil matches any), or fails the test after timeout.
func (c *Client) WaitForNotification(method string, timeout time.Duration, match func(json.RawMessage) bool) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range c.Notifications(method) {
			if match == nil || match(n.Params) {
				return n.Params
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatalf("timed out waiting for %s", method)
	return nil
}

// WaitForBuildFinished waits for the summary of the given build session.
func (c *Client) WaitForBuildFinished(sessionID int64, timeout time.Duration) protocol.BuildFinishedParams {
	c.t.Helper()
	var out protocol.BuildFinishedParams
	raw := c.WaitForNotification(protocol.MethodBuildFinished, timeout, func(raw json.RawMessage) bool {
		var p protocol.BuildFinishedParams
		return json.Unmarshal(raw, &p) == nil && p.SessionID == sessionID
	})
	if err := json.Unmarshal(raw, &out); err != nil {
		c.t.Fatalf("decoding %s: %v", protocol.MethodBuildFinished, err)
	}
	return out
}

// BuildMessages returns the per-file messages received for a build session.
func (c *Client) BuildMessages(sessionID int64) []protocol.BuildMessages {
	var out []protocol.BuildMessages
	for _, n := range c.Notifications(protocol.MethodBuildMessages) {
		var p protocol.BuildMessages
		if json.Unmarshal(n.Params, &p) == nil && p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out
}

// ShowMessages returns the window/showMessage notifications received so far.
func (c *Client) ShowMessages() []protocol.ShowMessageParams {
	var out []protocol.ShowMessageParams
	for _, n := range c.Notifications(protocol.MethodShowMessage) {
		var p protocol.ShowMessageParams
		if json.Unmarshal(n.Params, &p) == nil {
			out = append(out, p)
		}
	}
	return out
}

// Shutdown sends the shutdown request.
func (c *Client) Shutdown() {
	c.t.Helper()
	c.call(protocol.MethodShutdown, nil, nil)
}

// Exit sends the exit notification and returns what Serve returned.
func (c *Client) Exit(timeout time.Duration) error {
	c.t.Helper()
	c.notify(protocol.MethodExit, nil)
	select {
	case err := <-c.done:
		return err
	case <-time.After(timeout):
		c.t.Fatalf("server did not stop after exit")
		return nil
	}
}

func (c *Client) call(method string, params, result interface{}) {
	c.t.Helper()
	if err := c.callErr(method, params, result); err != nil {
		c.t.Fatalf("call %s failed: %v", method, err)
	}
}

func (c *Client) callErr(method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.conn.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshalling result: %w", err)
		}
	}
	return nil
}

func (c *Client) notify(method string, params interface{}) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.conn.Notify(ctx, method, params); err != nil {
		c.t.Fatalf("notify %s failed: %v", method, err)
	}
}
