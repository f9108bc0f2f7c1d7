package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ClientInfo identifies the calling application.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeParams are the params of initialize.
type InitializeParams struct {
	ClientInfo *ClientInfo `json:"client_info,omitempty"`
}

// ServerCapabilities is the manifest returned by initialize.
type ServerCapabilities struct {
	SupportedOperations    []string `json:"supported_operations"`
	SupportedInputFormats  []string `json:"supported_input_formats"`
	SupportedOutputFormats []string `json:"supported_output_formats"`
	SupportedMethods       []string `json:"supported_methods"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializeResult is the result of initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"server_info,omitempty"`
}

// ProcessImageParams are the params of process_image.
type ProcessImageParams struct {
	Image        ImageInput      `json:"image"`
	Operations   []OperationRequest `json:"operations"`
	OutputFormat string          `json:"output_format,omitempty"`
}

// ProcessImageResult is the result of process_image.
type ProcessImageResult struct {
	ImageAttachmentID string `json:"image_attachment_id"`
	Width             uint32 `json:"width"`
	Height            uint32 `json:"height"`
	Format            string `json:"format"`
}

// GetAttachmentParams are the params of get_attachment.
type GetAttachmentParams struct {
	AttachmentID string `json:"attachment_id"`
}

// GetAttachmentResult is the result of get_attachment. The bytes follow
// as the response's attachment.
type GetAttachmentResult struct {
	AttachmentID string `json:"attachment_id"`
	ContentType  string `json:"content_type"`
	Size         uint64 `json:"size"`
}

// OperationRequest is one requested operation. Params is kind specific; see
// ParseOperation.
type OperationRequest struct {
	Operation string          `json:"operation"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// SourceKind says where an ImageInput's bytes come from.
type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceBase64 SourceKind = "base64"
	SourceBlob   SourceKind = "blob"
)

// ImageInput is the image source of process_image.
//
// It accepts the externally tagged forms {"file":{"path":...}},
// {"base64":{"data":...}} and {"blob":{"data":...}} as well as the
// internally tagged {"type":"file","path":...}. Tags are matched without
// regard to case. Blob data may be a base64 string or an array of bytes;
// a blob without data refers to the request's first attachment.
type ImageInput struct {
	Kind SourceKind
	Path string
	Data string
	Blob []byte
}

// FileInput returns a file source.
func FileInput(path string) ImageInput { return ImageInput{Kind: SourceFile, Path: path} }

// Base64Input returns an inline base64 source.
func Base64Input(data string) ImageInput { return ImageInput{Kind: SourceBase64, Data: data} }

// BlobInput returns a raw byte source. A nil blob refers to the request's
// first attachment.
func BlobInput(data []byte) ImageInput { return ImageInput{Kind: SourceBlob, Blob: data} }

type inputBody struct {
	Path string          `json:"path,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON writes the externally tagged form.
func (in ImageInput) MarshalJSON() ([]byte, error) {
	var body inputBody
	switch in.Kind {
	case SourceFile:
		body.Path = in.Path
	case SourceBase64:
		raw, err := json.Marshal(in.Data)
		if err != nil {
			return nil, err
		}
		body.Data = raw
	case SourceBlob:
		if in.Blob != nil {
			raw, err := json.Marshal(in.Blob)
			if err != nil {
				return nil, err
			}
			body.Data = raw
		}
	default:
		return nil, fmt.Errorf("protocol: unknown image source %q", in.Kind)
	}
	return json.Marshal(map[string]inputBody{string(in.Kind): body})
}

// UnmarshalJSON accepts every form listed on ImageInput.
func (in *ImageInput) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("image source must be an object: %w", err)
	}
	lower := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		lower[strings.ToLower(k)] = v
	}

	var kind SourceKind
	var body inputBody
	if rawType, ok := lower["type"]; ok {
		var t string
		if err := json.Unmarshal(rawType, &t); err != nil {
			return fmt.Errorf("image source type: %w", err)
		}
		kind = SourceKind(strings.ToLower(t))
		if p, ok := lower["path"]; ok {
			if err := json.Unmarshal(p, &body.Path); err != nil {
				return fmt.Errorf("image source path: %w", err)
			}
		}
		body.Data = lower["data"]
	} else {
		if len(lower) != 1 {
			return fmt.Errorf("image source needs exactly one of file, base64 or blob")
		}
		for k, v := range lower {
			kind = SourceKind(k)
			if err := json.Unmarshal(v, &body); err != nil {
				return fmt.Errorf("image source %s: %w", k, err)
			}
		}
	}

	out := ImageInput{Kind: kind}
	switch kind {
	case SourceFile:
		if body.Path == "" {
			return fmt.Errorf("file image source needs a path")
		}
		out.Path = body.Path
	case SourceBase64:
		if err := json.Unmarshal(body.Data, &out.Data); err != nil || out.Data == "" {
			return fmt.Errorf("base64 image source needs a data string")
		}
	case SourceBlob:
		blob, err := decodeBlob(body.Data)
		if err != nil {
			return err
		}
		out.Blob = blob
	default:
		return fmt.Errorf("unknown image source %q", kind)
	}
	*in = out
	return nil
}

func decodeBlob(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var ints []int
		if err := json.Unmarshal(raw, &ints); err != nil {
			return nil, fmt.Errorf("blob data: %w", err)
		}
		out := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("blob data: byte %d out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		return out, nil
	}
	var out []byte
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("blob data: %w", err)
	}
	return out, nil
}
