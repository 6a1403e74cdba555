// Package rpc exposes the node's JSON-RPC 2.0 control surface over
// TCP, HTTP, and WebSocket transports, plus the subscribe/unsubscribe
// notification channel that streams BlockNotify, SuperBlockNotify, and
// NodeStatusNotify events to connected clients.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/witmesh/witnode/pkg/events"
)

// errNoConnection is returned when subscribe/unsubscribe is called
// over a stateless transport (plain HTTP) that never registered a
// connection with the subscription registry.
var errNoConnection = errors.New("rpc: subscriptions require a stateful connection (tcp or websocket)")

// Request is a single JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Response is a single JSON-RPC 2.0 reply. Exactly one of Result or
// Error is populated.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. Data carries structured cause
// information (validation field names, not stack traces) per the
// user-visible failure contract.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes, plus witnode-specific codes in
// the reserved server-error range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeNotFound         = -32001
	CodeValidationFailed = -32002
	CodeSensitiveMethod  = -32003
)

// Notification is the envelope delivered to a subscriber: the JSON
// encoding of the underlying event plus the subscription id that
// requested it, per spec.md section 4.8.
type Notification struct {
	JSONRPC      string          `json:"jsonrpc"`
	Method       string          `json:"method"`
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

func errorResponse(id json.RawMessage, code int, msg string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg, Data: data}}
}

func resultResponse(id json.RawMessage, result any) *Response {
	encoded, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, CodeInternalError, "encode result", err.Error())
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: encoded}
}

// encodeEvent renders an Event as the JSON payload a Notification
// carries, per spec.md §4.8 ("the JSON encoding of the event").
func encodeEvent(ev *events.Event) json.RawMessage {
	encoded, err := json.Marshal(ev)
	if err != nil {
		encoded, _ = json.Marshal(map[string]string{"error": "encode event: " + err.Error()})
	}
	return encoded
}

func encodeNotification(subID, method string, payload json.RawMessage) []byte {
	n := Notification{JSONRPC: "2.0", Method: method, Subscription: subID, Result: payload}
	out, err := json.Marshal(n)
	if err != nil {
		out, _ = json.Marshal(map[string]string{"error": "encode notification"})
	}
	return out
}
