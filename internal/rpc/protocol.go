// Package rpc serves a binscope.Service over JSON-RPC 2.0 on HTTP and
// provides a client for it.
//
// Parameters are passed by name. Every handler failure is reported as an
// internal error whose message is the error text; the standard codes for
// parse errors, invalid requests and unknown methods are reserved for
// transport faults.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only accepted "jsonrpc" member value.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one JSON-RPC call. A request without an id is a notification
// and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *Request) notification() bool { return len(r.ID) == 0 }

// Response is the reply to a Request. Exactly one of Result and Error is
// set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

var nullID = json.RawMessage("null")

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: msg}}
}
