package sightline

import (
	"context"
	"log/slog"

	"github.com/gossip-lsp/sightline/jsonrpc"
	"github.com/gossip-lsp/sightline/protocol"
)

// noToolchainMessage is shown when a build is requested without a toolchain.
const noToolchainMessage = "Cannot build: no toolchain is configured. Set build.toolchain in " +
	".sightline.toml or the editor settings."

// ClientProxy sends requests and notifications from server to client.
type ClientProxy struct {
	conn   *jsonrpc.Conn
	logger *slog.Logger
}

func newClientProxy(conn *jsonrpc.Conn, logger *slog.Logger) *ClientProxy {
	return &ClientProxy{conn: conn, logger: logger}
}

// LogMessage sends a log message to the client.
func (c *ClientProxy) LogMessage(ctx context.Context, typ protocol.MessageType, message string) error {
	return c.conn.Notify(ctx, protocol.MethodLogMessage, &protocol.LogMessageParams{
		Type:    typ,
		Message: message,
	})
}

// ShowMessage sends a show message notification to the client.
func (c *ClientProxy) ShowMessage(ctx context.Context, typ protocol.MessageType, message string) error {
	return c.conn.Notify(ctx, protocol.MethodShowMessage, &protocol.ShowMessageParams{
		Type:    typ,
		Message: message,
	})
}

// WarnNoToolchain shows a warning that building is impossible.
func (c *ClientProxy) WarnNoToolchain(ctx context.Context) {
	if err := c.ShowMessage(ctx, protocol.Warning, noToolchainMessage); err != nil {
		c.logger.Warn("client: show message failed", "error", err)
	}
}

// BuildMessages forwards the compiler messages of one file.
func (c *ClientProxy) BuildMessages(ctx context.Context, msg protocol.BuildMessages) {
	if err := c.conn.Notify(ctx, protocol.MethodBuildMessages, &msg); err != nil {
		c.logger.Warn("client: build messages dropped", "session", msg.SessionID, "uri", msg.URI, "error", err)
	}
}

// BuildFinished reports the end of a build.
func (c *ClientProxy) BuildFinished(ctx context.Context, params protocol.BuildFinishedParams) {
	if err := c.conn.Notify(ctx, protocol.MethodBuildFinished, &params); err != nil {
		c.logger.Warn("client: build result dropped", "session", params.SessionID, "error", err)
	}
}
