/*
	Package lsp holds just enough of the language server protocol's
	JSON-RPC framing to sit in the middle of a conversation:
	messages are decoded into an envelope, and their params and results
	are left raw for whoever cares to look inside.
*/
package lsp

import (
	"encoding/json"

	"github.com/warpfork/go-errcat"

	"github.com/polydawn/lspws/api/lspws"
)

const Version = "2.0"

type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

func (m *Message) IsRequest() bool      { return m.Method != "" && m.ID != nil }
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }
func (m *Message) IsResponse() bool     { return m.Method == "" && m.ID != nil }

// The id as a string usable for a map key.  Numbers and strings never collide.
func (m *Message) IDKey() string {
	if m.ID == nil {
		return ""
	}
	return string(*m.ID)
}

type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

/*
	Build the error object to answer a failed request with.
	Bad requests become InvalidParams; every other category is an
	InternalError.  The message is carried through either way.
*/
func ErrorFromCategory(err error) *Error {
	code := InternalError
	if errcat.Category(err) == lspws.ErrBadRequest {
		code = InvalidParams
	}
	msg := err.Error()
	if e, ok := err.(errcat.Error); ok {
		msg = e.Message()
	}
	return &Error{Code: code, Message: msg}
}

// An error response to the given request.
func ErrorResponse(req *Message, e *Error) *Message {
	return &Message{
		JSONRPC: Version,
		ID:      req.ID,
		Error:   e,
	}
}
