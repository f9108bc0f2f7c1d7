package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// JSON-RPC error codes used by the server.
const (
	CodeParseError         = -32700
	CodeInvalidRequest     = -32600
	CodeMethodNotFound     = -32601
	CodeInvalidParams      = -32602
	CodeInternalError      = -32603
	CodeAttachmentNotFound = -32001
	CodeNotInitialized     = -32002
)

// Protocol errors. They are fatal to the connection.
var (
	// ErrBadMagic is returned when a frame does not start with "SHD".
	ErrBadMagic = errors.New("protocol: bad frame magic")

	// ErrPayloadTooLarge is returned when a declared length exceeds the
	// transport's limit.
	ErrPayloadTooLarge = errors.New("protocol: payload too large")

	// ErrMalformed is returned for truncated frames and invalid JSON.
	ErrMalformed = errors.New("protocol: malformed frame")

	// ErrAttachmentMismatch is returned by Write when the payloads do not
	// match the message's descriptors.
	ErrAttachmentMismatch = errors.New("protocol: attachments do not match descriptors")
)

// IsProtocolError reports whether err leaves the stream unusable.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrBadMagic) || errors.Is(err, ErrPayloadTooLarge) || errors.Is(err, ErrMalformed)
}

// Error is a structured error carried in a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewError returns an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf formats an Error message.
func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of e carrying v as its data member. If v cannot
// be marshaled e is returned unchanged.
func (e *Error) WithData(v any) *Error {
	raw, err := json.Marshal(v)
	if err != nil {
		return e
	}
	out := *e
	out.Data = raw
	return &out
}

func ParseError() *Error { return NewError(CodeParseError, "Parse error") }

func InvalidRequest() *Error { return NewError(CodeInvalidRequest, "Invalid request") }

func MethodNotFound(method string) *Error {
	return Errorf(CodeMethodNotFound, "Method not found: %s", method)
}

func InvalidParams(message string) *Error { return NewError(CodeInvalidParams, message) }

func InternalError(message string) *Error { return NewError(CodeInternalError, message) }

func AttachmentNotFound(id string) *Error {
	return Errorf(CodeAttachmentNotFound, "Attachment not found: %s", id)
}

func NotInitialized() *Error { return NewError(CodeNotInitialized, "Server not initialized") }
