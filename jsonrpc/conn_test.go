package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// pipePair wires two Conns back to back over in-process pipes.
func pipePair(t *testing.T, serverHandler Handler, serverNotif NotificationHandler, opts ...Option) (client, server *Conn) {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	server = NewConn(NewCodec(c2sR, s2cW), serverHandler, serverNotif, opts...)
	client = NewConn(NewCodec(s2cR, c2sW), func(context.Context, string, RawMessage) (interface{}, error) {
		return nil, nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)
	go client.Run(ctx)
	t.Cleanup(func() {
		cancel()
		client.Close()
		server.Close()
		c2sW.Close()
		s2cW.Close()
	})
	return client, server
}

func TestCodecRoundTrip(t *testing.T) {
	r, w := io.Pipe()
	codec := NewCodec(r, w)
	go codec.Write([]byte(`{"jsonrpc":"2.0","method":"ping"}`))
	data, err := codec.Read()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"jsonrpc":"2.0","method":"ping"}` {
		t.Fatalf("read %s", data)
	}
}

func TestDecodeMessageKinds(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"initialize"}`, "*jsonrpc.Request"},
		{`{"jsonrpc":"2.0","id":"a","method":"initialize"}`, "*jsonrpc.Request"},
		{`{"jsonrpc":"2.0","method":"initialized"}`, "*jsonrpc.Notification"},
		{`{"jsonrpc":"2.0","id":3,"result":null}`, "*jsonrpc.Response"},
	}
	for _, tt := range tests {
		msg, err := DecodeMessage([]byte(tt.raw))
		if err != nil {
			t.Errorf("DecodeMessage(%s): %v", tt.raw, err)
			continue
		}
		if got := fmt.Sprintf("%T", msg); got != tt.want {
			t.Errorf("DecodeMessage(%s) = %s, want %s", tt.raw, got, tt.want)
		}
	}
	if _, err := DecodeMessage([]byte("{")); err == nil {
		t.Error("expected parse error")
	}
}

func TestCallReturnsResultAndError(t *testing.T) {
	handler := func(_ context.Context, method string, params RawMessage) (interface{}, error) {
		switch method {
		case "echo":
			var s string
			json.Unmarshal(params, &s)
			return s, nil
		case "fail":
			return nil, &Error{Code: CodeInvalidParams, Message: "bad"}
		}
		return nil, fmt.Errorf("wrapped: %w", &Error{Code: CodeMethodNotFound, Message: method})
	}
	client, _ := pipePair(t, handler, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, "echo", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Result) != `"hi"` {
		t.Fatalf("result = %s", resp.Result)
	}

	resp, err = client.Call(ctx, "fail", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("error = %+v", resp.Error)
	}

	resp, err = client.Call(ctx, "missing", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("wrapped error lost its code: %+v", resp.Error)
	}
}

func TestNotificationsDispatchInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	notif := func(_ context.Context, _ string, params RawMessage) {
		var n int
		json.Unmarshal(params, &n)
		// Early notifications are slow; ordering must still hold.
		if n < 3 {
			time.Sleep(5 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, n)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	}
	client, _ := pipePair(t, nil, notif)
	for i := 0; i < 10; i++ {
		if err := client.Notify(context.Background(), "didChange", i); err != nil {
			t.Fatal(err)
		}
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notifications")
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("notification order = %v", got)
		}
	}
}

func TestMaxConcurrencyBoundsHandlers(t *testing.T) {
	var inFlight, peak atomic.Int32
	handler := func(context.Context, string, RawMessage) (interface{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return true, nil
	}
	client, _ := pipePair(t, handler, nil, WithMaxConcurrency(2))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Call(ctx, "work", nil); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	handler := func(context.Context, string, RawMessage) (interface{}, error) {
		<-block
		return nil, nil
	}
	client, _ := pipePair(t, handler, nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "slow", nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	client.Close()
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after Close")
	}
}

func TestCodecRejectsBadHeaders(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"missing length", "Content-Type: application/json\r\n\r\n{}", ErrMissingLength},
		{"too large", fmt.Sprintf("Content-Length: %d\r\n\r\n", MaxMessageSize+1), ErrMessageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec := NewCodec(strings.NewReader(tt.input), io.Discard)
			if _, err := codec.Read(); !errors.Is(err, tt.want) {
				t.Fatalf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCodecSkipsBlankLinesAndStopsAtEOF(t *testing.T) {
	input := "\r\nContent-Length: 2\r\ncontent-type: x\r\n\r\n{}"
	codec := NewCodec(strings.NewReader(input), io.Discard)
	data, err := codec.Read()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{}" {
		t.Fatalf("read %q", data)
	}
	if _, err := codec.Read(); err != io.EOF {
		t.Fatalf("second Read() error = %v, want io.EOF", err)
	}
}

func TestIDEncoding(t *testing.T) {
	tests := []struct {
		id   ID
		json string
	}{
		{IntID(7), `7`},
		{StringID("7"), `"7"`},
		{ID{}, `null`},
	}
	seen := map[ID]bool{}
	for _, tt := range tests {
		data, err := json.Marshal(tt.id)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != tt.json {
			t.Errorf("Marshal(%s) = %s, want %s", tt.id, data, tt.json)
		}
		var back ID
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back != tt.id {
			t.Errorf("round trip of %s gave %s", tt.id, back)
		}
		seen[back] = true
	}
	if len(seen) != len(tests) {
		t.Fatalf("number and string ids collide: %v", seen)
	}
	var id ID
	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Fatal("fractional id accepted")
	}
}

func TestDecodeMessageRejects(t *testing.T) {
	tests := []struct {
		raw  string
		code int
	}{
		{`{`, CodeParseError},
		{`{"jsonrpc":"1.0","id":1,"method":"x"}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{`{"jsonrpc":"2.0","id":{},"method":"x"}`, CodeInvalidRequest},
	}
	for _, tt := range tests {
		_, err := DecodeMessage([]byte(tt.raw))
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			t.Errorf("DecodeMessage(%s) error = %v, want *Error", tt.raw, err)
			continue
		}
		if rpcErr.Code != tt.code {
			t.Errorf("DecodeMessage(%s) code = %d, want %d", tt.raw, rpcErr.Code, tt.code)
		}
	}
}

func TestMalformedMessageGetsNullIDError(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	server := NewConn(NewCodec(c2sR, s2cW), func(context.Context, string, RawMessage) (interface{}, error) {
		return nil, nil
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	t.Cleanup(func() {
		server.Close()
		c2sW.Close()
		s2cW.Close()
	})

	go NewCodec(nil, c2sW).Write([]byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`))
	data, err := NewCodec(s2cR, nil).Read()
	if err != nil {
		t.Fatal(err)
	}
	var resp struct {
		ID    json.RawMessage `json:"id"`
		Error *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	if string(resp.ID) != "null" || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("response = %s", data)
	}
}
