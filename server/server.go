package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/executor"
	"github.com/gogpu/shade/gpucore"
	"github.com/gogpu/shade/protocol"
)

// ErrShutdown is returned by Serve once the server has been shut down.
var ErrShutdown = errors.New("server: shut down")

// State is the lifecycle state of a Server.
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server dispatches requests onto the pipeline executor.
type Server struct {
	opts options

	mu      sync.Mutex
	state   State
	adapter gpucore.GPUAdapter
	backend string
	exec    *executor.Executor

	store  *attachmentStore
	images imageCache
}

// New returns an uninitialized server.
func New(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{opts: o}
	s.store = newAttachmentStore(o.attachmentCap, func(id string, size int) {
		s.log().Debug("server: attachment evicted", "id", id, "bytes", size)
	})
	return s
}

func (s *Server) log() *slog.Logger {
	if s.opts.logger != nil {
		return s.opts.logger
	}
	return shade.Logger()
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Backend returns the name of the backend opened by initialize.
func (s *Server) Backend() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

// Serve reads requests from t and writes their responses until the
// client sends shutdown or closes the stream. A clean end of stream
// returns nil. A protocol error ends the loop and is returned; the
// stream cannot be resynchronized after one.
//
// ctx is checked between requests. A blocked read is not interrupted.
func (s *Server) Serve(ctx context.Context, t *protocol.Transport) error {
	if s.State() == StateShutdown {
		return ErrShutdown
	}
	s.log().Info("server: serving", "name", shade.Name, "version", shade.Version)
	for {
		if err := ctx.Err(); err != nil {
			s.Close()
			return err
		}
		req, err := t.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log().Info("server: client closed the stream")
				s.Close()
				return nil
			}
			s.log().Error("server: read failed", "err", err)
			s.Close()
			return fmt.Errorf("server: %w", err)
		}

		resp, ok := s.Handle(req)
		if ok {
			if err := t.Write(resp); err != nil {
				s.Close()
				return fmt.Errorf("server: write response: %w", err)
			}
		}
		if s.State() == StateShutdown {
			s.log().Info("server: shut down")
			return nil
		}
	}
}

type outAttachment struct {
	id          string
	contentType string
	data        []byte
}

// Handle answers one request. ok is false when the message has no
// method, in which case nothing is sent back.
func (s *Server) Handle(req protocol.Packet) (resp protocol.Packet, ok bool) {
	msg := req.Message
	if !msg.IsRequest() {
		s.log().Debug("server: ignoring message without method", "id", msg.IDValue())
		return protocol.Packet{}, false
	}
	id := msg.IDValue()
	s.log().Debug("server: request", "id", id, "method", msg.Method, "attachments", len(req.Payloads))

	var (
		result any
		out    []outAttachment
		rpcErr *protocol.Error
	)
	switch msg.Method {
	case protocol.MethodInitialize:
		result, rpcErr = s.initialize(msg)
	case protocol.MethodShutdown:
		s.shutdown()
	case protocol.MethodProcessImage:
		if rpcErr = s.ready(); rpcErr == nil {
			result, out, rpcErr = s.processImage(req)
		}
	case protocol.MethodGetAttachment:
		if rpcErr = s.ready(); rpcErr == nil {
			result, out, rpcErr = s.getAttachment(msg)
		}
	default:
		rpcErr = protocol.MethodNotFound(msg.Method)
	}

	if rpcErr != nil {
		s.log().Debug("server: request failed", "id", id, "method", msg.Method,
			"code", rpcErr.Code, "message", rpcErr.Message)
		return protocol.Packet{Message: protocol.NewErrorResponse(id, rpcErr)}, true
	}
	m, err := protocol.NewResponse(id, result)
	if err != nil {
		return protocol.Packet{Message: protocol.NewErrorResponse(id, protocol.InternalError(err.Error()))}, true
	}
	resp = protocol.Packet{Message: m}
	for _, a := range out {
		resp.Attach(a.id, a.contentType, a.data)
	}
	return resp, true
}

func (s *Server) ready() *protocol.Error {
	switch s.State() {
	case StateInitialized:
		return nil
	case StateShutdown:
		return protocol.NewError(protocol.CodeInvalidRequest, "Server shut down")
	default:
		return protocol.NotInitialized()
	}
}

// currentExecutor returns the executor opened by initialize.
func (s *Server) currentExecutor() (*executor.Executor, *protocol.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exec == nil {
		return nil, protocol.NotInitialized()
	}
	return s.exec, nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	prev := s.state
	s.state = StateShutdown
	s.mu.Unlock()
	if prev != StateShutdown {
		s.log().Info("server: shutdown requested")
	}
	s.release()
}

// Close releases the adapter and every stored attachment. The server is
// left in the shutdown state.
func (s *Server) Close() {
	s.mu.Lock()
	s.state = StateShutdown
	s.mu.Unlock()
	s.release()
}

func (s *Server) release() {
	s.mu.Lock()
	exec, adapter := s.exec, s.adapter
	s.exec, s.adapter = nil, nil
	s.mu.Unlock()

	if exec != nil {
		exec.Close()
	}
	if adapter != nil {
		if err := adapter.Close(); err != nil {
			s.log().Warn("server: closing adapter", "err", err)
		}
	}
	s.store.clear()
	s.images.reset()
}
