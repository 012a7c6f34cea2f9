package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// ListenWebSocket starts an HTTP server with WebSocket upgrade on the given
// address and returns the first WebSocket connection as a transport.
// Used by Monaco, Theia, and other web-based editors.
func ListenWebSocket(ctx context.Context, addr string) (Transport, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return serveWebSocket(ctx, ln)
}

func serveWebSocket(ctx context.Context, ln net.Listener) (Transport, error) {
	connCh := make(chan *wsTransport, 1)
	srv := &http.Server{}
	srv.Handler = websocket.Handler(func(ws *websocket.Conn) {
		t := &wsTransport{conn: ws, srv: srv, closed: make(chan struct{})}
		select {
		case connCh <- t:
		default:
			// Only the first client is served.
			return
		}
		// The handler owns the connection; returning would close it.
		<-t.closed
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case t := <-connCh:
		return t, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		srv.Close()
		return nil, ctx.Err()
	}
}

type wsTransport struct {
	conn *websocket.Conn
	srv  *http.Server

	rmu     sync.Mutex
	pending []byte // unread tail of the last frame

	closeOnce sync.Once
	closed    chan struct{}
}

// Read returns frame payloads as a continuous byte stream, carrying over any
// part of a frame that did not fit in p.
func (w *wsTransport) Read(p []byte) (int, error) {
	w.rmu.Lock()
	defer w.rmu.Unlock()
	if len(w.pending) == 0 {
		var msg []byte
		if err := websocket.Message.Receive(w.conn, &msg); err != nil {
			return 0, err
		}
		w.pending = msg
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsTransport) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(w.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsTransport) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.conn.Close()
		if w.srv != nil {
			w.srv.Close()
		}
	})
	return err
}
