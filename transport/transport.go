// Package transport provides pluggable I/O transports for LSP communication.
// Supported transports include stdio, TCP, Unix domain sockets, WebSocket,
// and Node.js IPC (VS Code extension host).
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
)

// Transport provides a bidirectional byte stream for JSON-RPC communication.
// Each implementation wraps a specific communication mechanism (stdio, TCP, etc.)
// and exposes it as a simple reader/writer pair.
type Transport interface {
	io.ReadWriteCloser
}

// Kind names a transport mechanism.
type Kind string

const (
	KindStdio     Kind = "stdio"
	KindTCP       Kind = "tcp"
	KindSocket    Kind = "socket"
	KindWebSocket Kind = "ws"
	KindNodeIPC   Kind = "node-ipc"
)

// Spec selects a transport and, where relevant, the address it listens on.
type Spec struct {
	Kind Kind
	Addr string
}

func (s Spec) String() string {
	if s.Addr == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.Addr
}

// ParseSpec parses "stdio", "node-ipc", "tcp:<addr>", "socket:<path>" or
// "ws:<addr>".
func ParseSpec(s string) (Spec, error) {
	kind, addr, _ := strings.Cut(s, ":")
	spec := Spec{Kind: Kind(kind), Addr: addr}
	switch spec.Kind {
	case KindStdio, KindNodeIPC:
		if addr != "" {
			return Spec{}, fmt.Errorf("transport %s takes no address", kind)
		}
	case KindTCP, KindWebSocket, KindSocket:
		if addr == "" {
			return Spec{}, fmt.Errorf("transport %s requires an address", kind)
		}
	default:
		return Spec{}, fmt.Errorf("unknown transport %q", kind)
	}
	return spec, nil
}

// Open creates the transport described by spec. Listening transports block
// until the first client connects or ctx is done.
func Open(ctx context.Context, spec Spec) (Transport, error) {
	switch spec.Kind {
	case KindStdio, "":
		return Stdio(), nil
	case KindNodeIPC:
		return NodeIPC(), nil
	case KindTCP:
		return ListenTCP(ctx, spec.Addr)
	case KindSocket:
		return ListenSocket(ctx, spec.Addr)
	case KindWebSocket:
		return ListenWebSocket(ctx, spec.Addr)
	}
	return nil, fmt.Errorf("unknown transport %q", spec.Kind)
}

// acceptOne accepts a single connection from ln, giving up when ctx is done.
func acceptOne(ctx context.Context, ln net.Listener) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return conn, nil
}
