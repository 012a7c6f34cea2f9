package transport

import (
	"context"
	"net"
	"os"
)

// ListenSocket starts a Unix domain socket listener and returns the first
// connection as a transport. Used by Neovim's vim.lsp.rpc.connect() and
// other editors supporting local IPC.
func ListenSocket(ctx context.Context, path string) (Transport, error) {
	os.Remove(path)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	conn, err := acceptOne(ctx, ln)
	if err != nil {
		return nil, err
	}
	return &socketTransport{conn: conn, path: path}, nil
}

// DialSocket connects to an existing Unix domain socket.
func DialSocket(ctx context.Context, path string) (Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return &socketTransport{conn: conn}, nil
}

type socketTransport struct {
	conn net.Conn
	path string // removed on Close when non-empty
}

func (s *socketTransport) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *socketTransport) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *socketTransport) Close() error {
	err := s.conn.Close()
	if s.path != "" {
		os.Remove(s.path)
	}
	return err
}
