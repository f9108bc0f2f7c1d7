package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/codec"
	"github.com/gogpu/shade/executor"
	"github.com/gogpu/shade/graph"
	"github.com/gogpu/shade/internal/diskcache"
	"github.com/gogpu/shade/protocol"
)

// DefaultOutputFormat is used when process_image names no format.
const DefaultOutputFormat = codec.PNG

func hasParams(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Manifest returns the capabilities reported by initialize.
func Manifest() protocol.InitializeResult {
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			SupportedOperations:    protocol.OperationNames(),
			SupportedInputFormats:  codec.InputFormats(),
			SupportedOutputFormats: codec.OutputFormats(),
			SupportedMethods:       protocol.Methods(),
		},
		ServerInfo: &protocol.ServerInfo{Name: shade.Name, Version: shade.Version},
	}
}

func (s *Server) initialize(msg protocol.Message) (any, *protocol.Error) {
	if !hasParams(msg.Params) {
		return nil, protocol.InvalidParams("Missing initialize parameters")
	}
	var params protocol.InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, protocol.InvalidParams("Invalid initialize params: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateShutdown:
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "Server shut down")
	case StateInitialized:
		return Manifest(), nil
	}

	adapter, name, err := s.opts.open()
	if err != nil {
		return nil, protocol.InternalError(fmt.Sprintf("Failed to open GPU device: %v", err))
	}
	exec := executor.New(adapter, append([]executor.Option{executor.WithLogger(s.log())}, s.opts.execOpts...)...)
	if err := exec.Init(); err != nil {
		if cerr := adapter.Close(); cerr != nil {
			s.log().Warn("server: closing adapter", "err", cerr)
		}
		return nil, protocol.InternalError(fmt.Sprintf("Failed to initialize pipelines: %v", err))
	}
	s.adapter, s.exec, s.backend = adapter, exec, name
	s.state = StateInitialized

	info := adapter.Info()
	attrs := []any{"backend", name, "adapter", info.Name}
	if params.ClientInfo != nil {
		attrs = append(attrs, "client", params.ClientInfo.Name, "client_version", params.ClientInfo.Version)
	}
	s.log().Info("server: initialized", attrs...)
	return Manifest(), nil
}

func (s *Server) processImage(req protocol.Packet) (any, []outAttachment, *protocol.Error) {
	msg := req.Message
	if !hasParams(msg.Params) {
		return nil, nil, protocol.InvalidParams("Missing process_image parameters")
	}
	var params protocol.ProcessImageParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, nil, protocol.InvalidParams("Invalid process_image params: " + err.Error())
	}
	ops, err := protocol.ParseOperations(params.Operations)
	if err != nil {
		return nil, nil, protocol.InvalidParams("Invalid process_image params: " + err.Error())
	}
	format := DefaultOutputFormat
	if params.OutputFormat != "" {
		f, err := codec.ParseFormat(params.OutputFormat)
		if err != nil || !f.CanEncode() {
			return nil, nil, protocol.InvalidParams("Unsupported output format: " + params.OutputFormat)
		}
		format = f
	}

	data, rpcErr := s.sourceBytes(params.Image, req)
	if rpcErr != nil {
		return nil, nil, rpcErr
	}
	img, err := s.decode(data, params.Image.Path)
	if err != nil {
		return nil, nil, protocol.InternalError("Failed to decode image: " + err.Error())
	}

	g, err := graph.BuildChain(ops)
	if err != nil {
		return nil, nil, protocol.InternalError("Failed to build pipeline: " + err.Error())
	}
	exec, rpcErr := s.currentExecutor()
	if rpcErr != nil {
		return nil, nil, rpcErr
	}
	out, err := exec.Process(g, img)
	if err != nil {
		return nil, nil, protocol.InternalError("Processing failed: " + err.Error())
	}

	var encOpts []codec.EncodeOption
	if s.opts.depth16 {
		encOpts = append(encOpts, codec.WithDepth16())
	}
	encoded, err := codec.EncodeBytes(out, format, encOpts...)
	if err != nil {
		return nil, nil, protocol.InternalError("Failed to encode image: " + err.Error())
	}

	id := uuid.NewString()
	contentType := format.ContentType()
	s.store.put(id, attachment{data: encoded, contentType: contentType})
	s.log().Debug("server: image processed",
		"attachment", id, "width", out.Width, "height", out.Height,
		"format", format, "bytes", len(encoded), "operations", len(ops))

	result := protocol.ProcessImageResult{
		ImageAttachmentID: id,
		Width:             out.Width,
		Height:            out.Height,
		Format:            string(format),
	}
	return result, []outAttachment{{id: id, contentType: contentType, data: encoded}}, nil
}

// sourceBytes returns the encoded bytes an image source refers to.
func (s *Server) sourceBytes(in protocol.ImageInput, req protocol.Packet) ([]byte, *protocol.Error) {
	switch in.Kind {
	case protocol.SourceFile:
		data, err := afero.ReadFile(s.opts.fs, in.Path)
		if err != nil {
			return nil, protocol.InternalError(fmt.Sprintf("Failed to read image %s: %v", in.Path, err))
		}
		return data, nil
	case protocol.SourceBase64:
		data, err := base64.StdEncoding.DecodeString(in.Data)
		if err != nil {
			return nil, protocol.InternalError("Invalid base64 image data: " + err.Error())
		}
		return data, nil
	case protocol.SourceBlob:
		if in.Blob != nil {
			return in.Blob, nil
		}
		data, ok := req.First()
		if !ok {
			return nil, protocol.InvalidParams("Blob image source has no data and the request has no attachment")
		}
		return data, nil
	default:
		return nil, protocol.InvalidParams(fmt.Sprintf("Unknown image source %q", in.Kind))
	}
}

// decode returns the pixels of data, reusing the last decoded source
// when the bytes are identical.
func (s *Server) decode(data []byte, hint string) (executor.Image, error) {
	key := contentKey(data)
	if img, ok := s.images.get(key); ok {
		s.log().Debug("server: using cached source image", "width", img.Width, "height", img.Height)
		return img, nil
	}

	var diskKey string
	if s.opts.disk != nil {
		diskKey = diskcache.Key(data, "")
		if img, ok := s.opts.disk.Load(diskKey); ok {
			s.log().Debug("server: source image loaded from disk cache", "key", diskKey)
			s.images.put(key, img)
			return img, nil
		}
	}

	img, err := codec.Decode(data, hint)
	if err != nil {
		return executor.Image{}, err
	}
	s.log().Debug("server: source image decoded", "width", img.Width, "height", img.Height, "bytes", len(data))
	s.images.put(key, img)
	if s.opts.disk != nil {
		if err := s.opts.disk.Save(diskKey, img); err != nil {
			s.log().Warn("server: disk cache write failed", "err", err)
		}
	}
	return img, nil
}

func (s *Server) getAttachment(msg protocol.Message) (any, []outAttachment, *protocol.Error) {
	if !hasParams(msg.Params) {
		return nil, nil, protocol.InvalidParams("Missing get_attachment parameters")
	}
	var params protocol.GetAttachmentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, nil, protocol.InvalidParams("Invalid get_attachment params: " + err.Error())
	}
	a, ok := s.store.get(params.AttachmentID)
	if !ok {
		return nil, nil, protocol.AttachmentNotFound(params.AttachmentID)
	}
	result := protocol.GetAttachmentResult{
		AttachmentID: params.AttachmentID,
		ContentType:  a.contentType,
		Size:         uint64(len(a.data)),
	}
	return result, []outAttachment{{id: params.AttachmentID, contentType: a.contentType, data: a.data}}, nil
}
