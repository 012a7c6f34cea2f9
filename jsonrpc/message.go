package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const Version = "2.0"

// RawMessage is a raw JSON value that delays unmarshaling.
type RawMessage = json.RawMessage

// Message is a Request, Notification or Response.
type Message interface {
	isJSONRPC()
}

// Request expects a Response with the same ID.
type Request struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      ID         `json:"id"`
	Method  string     `json:"method"`
	Params  RawMessage `json:"params,omitempty"`
}

// Notification is a request without an ID; it gets no Response.
type Notification struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      ID         `json:"id"`
	Result  RawMessage `json:"result,omitempty"`
	Error   *Error     `json:"error,omitempty"`
}

func (Request) isJSONRPC()      {}
func (Notification) isJSONRPC() {}
func (Response) isJSONRPC()     {}

// Error is the error object of a Response. Handlers return it to choose
// the code the client sees; any other error becomes CodeInternalError.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// Errorf builds an *Error with a formatted message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// LSP error codes.
const (
	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)

type idKind uint8

const (
	idNull idKind = iota
	idNumber
	idString
)

// ID is a request id: a number, a string, or null. IDs are comparable and
// usable as map keys.
type ID struct {
	kind idKind
	num  int64
	str  string
}

func IntID(v int64) ID     { return ID{kind: idNumber, num: v} }
func StringID(v string) ID { return ID{kind: idString, str: v} }

// IsValid reports whether the id is not null.
func (id ID) IsValid() bool { return id.kind != idNull }

func (id ID) String() string {
	switch id.kind {
	case idNumber:
		return strconv.FormatInt(id.num, 10)
	case idString:
		return strconv.Quote(id.str)
	}
	return "null"
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return strconv.AppendInt(nil, id.num, 10), nil
	case idString:
		return json.Marshal(id.str)
	}
	return []byte("null"), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ID{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return Errorf(CodeInvalidRequest, "id must be an integer, a string or null, got %s", data)
	}
	*id = IntID(n)
	return nil
}

// wire is the union of all message fields.
type wire struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      *ID        `json:"id"`
	Method  string     `json:"method"`
	Params  RawMessage `json:"params"`
	Result  RawMessage `json:"result"`
	Error   *Error     `json:"error"`
}

// DecodeMessage classifies data by its fields: a method with an id is a
// Request, a method without one a Notification, anything else a Response.
// A malformed message yields an *Error with CodeParseError or
// CodeInvalidRequest.
func DecodeMessage(data []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, Errorf(CodeParseError, "parse error: %v", err)
	}
	if w.JSONRPC != Version {
		return nil, Errorf(CodeInvalidRequest, "unsupported jsonrpc version %q", w.JSONRPC)
	}

	if w.Method == "" {
		if w.Result == nil && w.Error == nil {
			return nil, Errorf(CodeInvalidRequest, "message has neither method nor result")
		}
		r := &Response{JSONRPC: w.JSONRPC, Result: w.Result, Error: w.Error}
		if w.ID != nil {
			r.ID = *w.ID
		}
		return r, nil
	}
	if w.ID != nil && w.ID.IsValid() {
		return &Request{JSONRPC: w.JSONRPC, ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	}
	return &Notification{JSONRPC: w.JSONRPC, Method: w.Method, Params: w.Params}, nil
}

// NewResponse answers the request id with result, or with err when it is
// non-nil.
func NewResponse(id ID, result interface{}, err error) *Response {
	resp := &Response{JSONRPC: Version, ID: id}
	if err != nil {
		var rpcErr *Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &Error{Code: CodeInternalError, Message: err.Error()}
		}
		resp.Error = rpcErr
		return resp
	}
	data, merr := json.Marshal(result)
	if merr != nil {
		resp.Error = Errorf(CodeInternalError, "marshal result: %v", merr)
		return resp
	}
	resp.Result = data
	return resp
}
