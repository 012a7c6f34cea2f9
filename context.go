package sightline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gossip-lsp/sightline/document"
	"github.com/gossip-lsp/sightline/protocol"
)

// Context is what every handler receives: the message's context.Context
// plus the connected client and the open documents.
type Context struct {
	context.Context

	Client    *ClientProxy
	Documents *document.Store
	server    *Server
}

func newContext(ctx context.Context, s *Server) *Context {
	return &Context{
		Context:   ctx,
		Client:    s.Client(),
		Documents: s.docStore,
		server:    s,
	}
}

// Server returns the server handling the message.
func (c *Context) Server() *Server { return c.server }

// Logger returns the server's logger.
func (c *Context) Logger() *slog.Logger { return c.server.logger }

// WorkspaceFolders returns the folders open right now, including changes
// made by workspace/didChangeWorkspaceFolders.
func (c *Context) WorkspaceFolders() []protocol.WorkspaceFolder {
	return c.server.Folders()
}

// WorkspaceFor returns the innermost folder containing uri. A uri outside
// every folder maps to the first folder, and "" means there are none.
func (c *Context) WorkspaceFor(uri protocol.DocumentURI) protocol.DocumentURI {
	folders := c.WorkspaceFolders()
	if f, ok := folderFor(folders, uri); ok {
		return f.URI
	}
	if len(folders) > 0 {
		return folders[0].URI
	}
	return ""
}

// folderFor matches on whole path segments, so file:///src/app does not
// contain file:///src/application/main.go.
func folderFor(folders []protocol.WorkspaceFolder, uri protocol.DocumentURI) (protocol.WorkspaceFolder, bool) {
	var best protocol.WorkspaceFolder
	bestLen := -1
	for _, f := range folders {
		root := strings.TrimSuffix(string(f.URI), "/")
		if string(uri) != root && !strings.HasPrefix(string(uri), root+"/") {
			continue
		}
		if len(root) > bestLen {
			best, bestLen = f, len(root)
		}
	}
	return best, bestLen >= 0
}
