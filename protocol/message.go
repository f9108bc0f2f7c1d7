package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the envelope's jsonrpc tag.
const Version = "2.0"

// Method names.
const (
	MethodInitialize    = "initialize"
	MethodProcessImage  = "process_image"
	MethodGetAttachment = "get_attachment"
	MethodShutdown      = "shutdown"
)

// Methods lists the methods a server answers.
func Methods() []string {
	return []string{MethodInitialize, MethodProcessImage, MethodGetAttachment, MethodShutdown}
}

// AttachmentDescriptor describes one binary payload following the JSON.
type AttachmentDescriptor struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Size        uint64 `json:"size"`
}

// Message is the envelope shared by requests, responses and
// notifications.
type Message struct {
	JSONRPC           string                 `json:"jsonrpc"`
	ID                *uint64                `json:"id,omitempty"`
	Method            string                 `json:"method,omitempty"`
	Params            json.RawMessage        `json:"params,omitempty"`
	Result            json.RawMessage        `json:"result,omitempty"`
	Error             *Error                 `json:"error,omitempty"`
	BinaryAttachments []AttachmentDescriptor `json:"binary_attachments"`
}

// IsRequest reports whether m names a method.
func (m *Message) IsRequest() bool { return m.Method != "" }

// IsNotification reports whether m is a request without an id.
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IDValue returns the id, or 0 when there is none.
func (m *Message) IDValue() uint64 {
	if m.ID == nil {
		return 0
	}
	return *m.ID
}

// DecodeParams unmarshals the params member into v.
func (m *Message) DecodeParams(v any) error {
	if len(m.Params) == 0 {
		return fmt.Errorf("protocol: %s has no params", m.Method)
	}
	return json.Unmarshal(m.Params, v)
}

// DecodeResult unmarshals the result member into v, or returns the
// response's Error.
func (m *Message) DecodeResult(v any) error {
	if m.Error != nil {
		return m.Error
	}
	if len(m.Result) == 0 {
		return fmt.Errorf("protocol: response has no result")
	}
	return json.Unmarshal(m.Result, v)
}

func marshalMember(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	return raw, nil
}

// NewRequest builds a request. params may be nil.
func NewRequest(id uint64, method string, params any) (Message, error) {
	m := Message{JSONRPC: Version, ID: &id, Method: method}
	if params != nil {
		raw, err := marshalMember(params)
		if err != nil {
			return Message{}, err
		}
		m.Params = raw
	}
	return m, nil
}

// NewNotification builds a request without an id.
func NewNotification(method string, params any) (Message, error) {
	m, err := NewRequest(0, method, params)
	m.ID = nil
	return m, err
}

// NewResponse builds a successful response. A nil result is sent as null.
func NewResponse(id uint64, result any) (Message, error) {
	raw, err := marshalMember(result)
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: Version, ID: &id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id uint64, e *Error) Message {
	return Message{JSONRPC: Version, ID: &id, Error: e}
}
