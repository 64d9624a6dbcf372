package remote

import (
	"encoding/json"
	"errors"

	"github.com/julianstephens/studyplanner/internal/docstore"
)

// WSPath is the sync server's websocket endpoint.
const WSPath = "/v1/ws"

// Message types.
const (
	TypeCreate      = "create"
	TypeUpdate      = "update"
	TypeDelete      = "delete"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeAck         = "ack"
	TypeSnapshot    = "snapshot"
	TypeError       = "error"
)

// Error codes carried next to the message so sentinels survive the wire.
const (
	CodeNotFound    = "not_found"
	CodeInvalidPath = "invalid_path"
	CodeClosed      = "closed"
	CodeBadRequest  = "bad_request"
)

// Message is the JSON text frame exchanged in both directions.
type Message struct {
	Type   string              `json:"type"`
	ReqID  string              `json:"req_id,omitempty"`
	SubID  string              `json:"sub_id,omitempty"`
	Path   string              `json:"path,omitempty"`
	ID     string              `json:"id,omitempty"`
	Fields json.RawMessage     `json:"fields,omitempty"`
	Docs   []docstore.Document `json:"docs,omitempty"`
	Error  string              `json:"error,omitempty"`
	Code   string              `json:"code,omitempty"`
}

// ErrorCode classifies err for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, docstore.ErrInvalidPath):
		return CodeInvalidPath
	case errors.Is(err, docstore.ErrClosed):
		return CodeClosed
	}
	return ""
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return "sync server: " + e.Message
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return docstore.ErrNotFound
	case CodeInvalidPath:
		return docstore.ErrInvalidPath
	case CodeClosed:
		return docstore.ErrClosed
	}
	return nil
}

func errorFrom(m Message) error {
	return &RemoteError{Code: m.Code, Message: m.Error}
}
