// Package jsonrpc implements a bidirectional JSON-RPC 2.0 connection over
// Content-Length framed streams, as specified by the LSP base protocol.
package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Call when the connection shuts down before a
// response arrives.
var ErrClosed = errors.New("jsonrpc: connection closed")

// Handler processes an incoming JSON-RPC request or notification.
type Handler func(ctx context.Context, method string, params RawMessage) (result interface{}, err error)

// NotificationHandler processes an incoming JSON-RPC notification.
type NotificationHandler func(ctx context.Context, method string, params RawMessage)

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the logger used for protocol-level problems such as
// malformed messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithMaxConcurrency bounds the number of requests handled at once.
// Notifications are not counted; they are always dispatched in order on a
// single goroutine.
func WithMaxConcurrency(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// Conn is a bidirectional JSON-RPC 2.0 connection.
type Conn struct {
	codec   *Codec
	handler Handler
	notif   NotificationHandler
	logger  *slog.Logger
	sem     *semaphore.Weighted

	notifications chan *Notification

	pending   sync.Map // id -> chan *Response
	nextID    atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn creates a new JSON-RPC connection using the given codec, request
// handler, and notification handler.
func NewConn(codec *Codec, handler Handler, notif NotificationHandler, opts ...Option) *Conn {
	c := &Conn{
		codec:         codec,
		handler:       handler,
		notif:         notif,
		logger:        slog.Default(),
		notifications: make(chan *Notification, 64),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads messages from the connection until it is closed or an error occurs.
func (c *Conn) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.dispatchNotifications(ctx)
	}()
	defer func() {
		c.Close()
		close(c.notifications)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		default:
		}

		data, err := c.codec.Read()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
				return fmt.Errorf("reading message: %w", err)
			}
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			c.logger.Warn("malformed message", "error", err)
			c.reply(NewResponse(ID{}, nil, err), "")
			continue
		}

		switch m := msg.(type) {
		case *Request:
			if c.sem != nil {
				if err := c.sem.Acquire(ctx, 1); err != nil {
					return err
				}
			}
			go c.handleRequest(ctx, m)
		case *Notification:
			select {
			case c.notifications <- m:
			case <-ctx.Done():
				return ctx.Err()
			}
		case *Response:
			c.handleResponse(m)
		}
	}
}

func (c *Conn) handleRequest(ctx context.Context, req *Request) {
	if c.sem != nil {
		defer c.sem.Release(1)
	}
	result, err := c.handler(ctx, req.Method, req.Params)
	c.reply(NewResponse(req.ID, result, err), req.Method)
}

func (c *Conn) reply(resp *Response, method string) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("encoding response", "method", method, "id", resp.ID.String(), "error", err)
		data, _ = json.Marshal(NewResponse(resp.ID, nil, err))
	}
	if err := c.codec.Write(data); err != nil {
		c.logger.Debug("writing response", "method", method, "id", resp.ID.String(), "error", err)
	}
}

// dispatchNotifications handles notifications sequentially so document
// edits are applied in the order the client sent them.
func (c *Conn) dispatchNotifications(ctx context.Context) {
	for n := range c.notifications {
		if c.notif != nil {
			c.notif(ctx, n.Method, n.Params)
		} else if c.handler != nil {
			c.handler(ctx, n.Method, n.Params)
		}
	}
}

func (c *Conn) handleResponse(resp *Response) {
	if ch, ok := c.pending.LoadAndDelete(resp.ID); ok {
		ch.(chan *Response) <- resp
	}
}

// Call sends a request and waits for a response.
func (c *Conn) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	id := IntID(c.nextID.Add(1))
	paramsData, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	req := &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  paramsData,
	}

	ch := make(chan *Response, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := c.codec.Write(data); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// Notify sends a notification (no response expected).
func (c *Conn) Notify(ctx context.Context, method string, params interface{}) error {
	paramsData, err := marshalParams(params)
	if err != nil {
		return err
	}

	notif := &Notification{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsData,
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	return c.codec.Write(data)
}

// Close terminates the connection.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func marshalParams(v interface{}) (RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
