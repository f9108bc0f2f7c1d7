// Package client talks to a shade request server, usually a subprocess
// started with --socket.
//
// A Client owns at most one server connection. It dials lazily, performs
// initialize, and serializes calls. When a call times out or the stream
// fails, the connection is closed and the next call dials a new server.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/shade"
	"github.com/gogpu/shade/protocol"
)

// DefaultTimeout bounds a call whose context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by calls after Close.
var ErrClosed = errors.New("client: closed")

// Attachment is a binary payload sent with a request.
type Attachment struct {
	ID          string
	ContentType string
	Data        []byte
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout    time.Duration
	logger     *slog.Logger
	info       protocol.ClientInfo
	maxPayload uint64
}

// WithTimeout sets the per-call timeout used when the context has no
// deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClientInfo sets the name and version sent with initialize.
func WithClientInfo(name, version string) Option {
	return func(o *options) { o.info = protocol.ClientInfo{Name: name, Version: version} }
}

// WithMaxPayload bounds the size of response bodies and attachments.
func WithMaxPayload(n uint64) Option {
	return func(o *options) { o.maxPayload = n }
}

// Client is a supervised connection to a server.
type Client struct {
	dialer Dialer
	opts   options

	mu       sync.Mutex
	conn     Conn
	t        *protocol.Transport
	manifest *protocol.InitializeResult
	nextID   uint64
	dials    int
	closed   bool
}

// New returns a client that connects through d on first use.
func New(d Dialer, opts ...Option) *Client {
	o := options{
		timeout: DefaultTimeout,
		info:    protocol.ClientInfo{Name: "shade-client", Version: shade.Version},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{dialer: d, opts: o, nextID: 1}
}

func (c *Client) log() *slog.Logger {
	if c.opts.logger != nil {
		return c.opts.logger
	}
	return shade.Logger()
}

// Restarts returns how many times the server was dialed again after the
// first connection.
func (c *Client) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.dials-1, 0)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.opts.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.timeout)
}

// Initialize connects if needed and returns the server's manifest.
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c.manifest, nil
}

// Call sends a request and returns the response. A response carrying an
// error is returned together with that *protocol.Error.
func (c *Client) Call(ctx context.Context, method string, params any, attachments ...Attachment) (protocol.Packet, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(ctx); err != nil {
		return protocol.Packet{}, err
	}
	return c.roundTrip(ctx, method, params, attachments)
}

// ProcessImage runs params on the server and returns the result with the
// encoded image.
func (c *Client) ProcessImage(ctx context.Context, params protocol.ProcessImageParams, attachments ...Attachment) (protocol.ProcessImageResult, []byte, error) {
	var result protocol.ProcessImageResult
	resp, err := c.Call(ctx, protocol.MethodProcessImage, params, attachments...)
	if err != nil {
		return result, nil, err
	}
	if err := resp.Message.DecodeResult(&result); err != nil {
		return result, nil, fmt.Errorf("client: decode process_image result: %w", err)
	}
	data, ok := resp.Attachment(result.ImageAttachmentID)
	if !ok {
		data, _ = resp.First()
	}
	return result, data, nil
}

// GetAttachment fetches a stored attachment.
func (c *Client) GetAttachment(ctx context.Context, id string) (protocol.GetAttachmentResult, []byte, error) {
	var result protocol.GetAttachmentResult
	resp, err := c.Call(ctx, protocol.MethodGetAttachment, protocol.GetAttachmentParams{AttachmentID: id})
	if err != nil {
		return result, nil, err
	}
	if err := resp.Message.DecodeResult(&result); err != nil {
		return result, nil, fmt.Errorf("client: decode get_attachment result: %w", err)
	}
	data, _ := resp.First()
	return result, data, nil
}

// Shutdown asks a connected server to exit and closes the connection.
// The client may be used again afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_, err := c.roundTrip(ctx, protocol.MethodShutdown, nil, nil)
	c.disconnect()
	return err
}

// Close closes the connection without a shutdown request. Later calls
// return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.disconnect()
}

// connect dials and initializes a server if there is no live one.
func (c *Client) connect(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("client: dial: %w", err)
	}
	c.dials++
	c.conn = conn
	var topts []protocol.TransportOption
	if c.opts.maxPayload > 0 {
		topts = append(topts, protocol.WithMaxPayload(c.opts.maxPayload))
	}
	c.t = protocol.NewTransport(conn, conn, topts...)
	if c.dials > 1 {
		c.log().Info("client: server restarted", "restarts", c.dials-1)
	}

	info := c.opts.info
	resp, err := c.roundTrip(ctx, protocol.MethodInitialize, protocol.InitializeParams{ClientInfo: &info}, nil)
	if err != nil {
		c.disconnect()
		return fmt.Errorf("client: initialize: %w", err)
	}
	var manifest protocol.InitializeResult
	if err := resp.Message.DecodeResult(&manifest); err != nil {
		c.disconnect()
		return fmt.Errorf("client: initialize: %w", err)
	}
	c.manifest = &manifest
	return nil
}

func (c *Client) disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.t, c.manifest = nil, nil, nil
	return err
}

type result struct {
	packet protocol.Packet
	err    error
}

// roundTrip writes one request and waits for the response with its id.
// On timeout or a stream failure the connection is dropped.
func (c *Client) roundTrip(ctx context.Context, method string, params any, attachments []Attachment) (protocol.Packet, error) {
	id := c.nextID
	c.nextID++
	msg, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return protocol.Packet{}, err
	}
	req := protocol.Packet{Message: msg}
	for _, a := range attachments {
		req.Attach(a.ID, a.ContentType, a.Data)
	}

	t := c.t
	done := make(chan result, 1)
	go func() {
		if err := t.Write(req); err != nil {
			done <- result{err: err}
			return
		}
		for {
			p, err := t.Read()
			if err != nil {
				done <- result{err: err}
				return
			}
			if p.Message.IsRequest() || p.Message.ID == nil || *p.Message.ID != id {
				c.log().Debug("client: skipping unrelated message", "id", p.Message.IDValue(), "method", p.Message.Method)
				continue
			}
			done <- result{packet: p}
			return
		}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.log().Warn("client: connection failed", "method", method, "err", r.err)
			c.disconnect()
			return protocol.Packet{}, fmt.Errorf("client: %s: %w", method, r.err)
		}
		if r.packet.Message.Error != nil {
			return r.packet, r.packet.Message.Error
		}
		return r.packet, nil
	case <-ctx.Done():
		c.log().Warn("client: call abandoned, dropping server", "method", method, "err", ctx.Err())
		// Closing the connection unblocks the goroutine.
		c.disconnect()
		return protocol.Packet{}, fmt.Errorf("client: %s: %w", method, ctx.Err())
	}
}
