package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/gogpu/shade"
)

// Magic starts every frame.
var Magic = [3]byte{'S', 'H', 'D'}

// DefaultMaxPayload bounds the JSON body and each attachment.
const DefaultMaxPayload = 1 << 30

// Packet is a message together with its attachment payloads in frame
// order.
type Packet struct {
	Message  Message
	Payloads [][]byte
}

// Attach appends a payload and its descriptor.
func (p *Packet) Attach(id, contentType string, data []byte) {
	p.Message.BinaryAttachments = append(p.Message.BinaryAttachments, AttachmentDescriptor{
		ID:          id,
		ContentType: contentType,
		Size:        uint64(len(data)),
	})
	p.Payloads = append(p.Payloads, data)
}

// Attachment returns the payload whose descriptor has the given id.
func (p *Packet) Attachment(id string) ([]byte, bool) {
	for i, d := range p.Message.BinaryAttachments {
		if d.ID == id && i < len(p.Payloads) {
			return p.Payloads[i], true
		}
	}
	return nil, false
}

// First returns the first payload.
func (p *Packet) First() ([]byte, bool) {
	if len(p.Payloads) == 0 {
		return nil, false
	}
	return p.Payloads[0], true
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithMaxPayload sets the largest JSON body or attachment accepted by
// Read. Zero keeps the default.
func WithMaxPayload(n uint64) TransportOption {
	return func(t *Transport) {
		if n > 0 {
			t.maxPayload = n
		}
	}
}

// Transport reads and writes frames over a byte stream.
//
// Read and Write may be called from different goroutines. Concurrent
// Writes are serialized; concurrent Reads are not allowed.
type Transport struct {
	r          *bufio.Reader
	wmu        sync.Mutex
	w          *bufio.Writer
	maxPayload uint64
}

// NewTransport returns a transport reading r and writing w. Either may be
// nil for a one-directional transport.
func NewTransport(r io.Reader, w io.Writer, opts ...TransportOption) *Transport {
	t := &Transport{maxPayload: DefaultMaxPayload}
	if r != nil {
		t.r = bufio.NewReader(r)
	}
	if w != nil {
		t.w = bufio.NewWriter(w)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Read reads one frame. It returns io.EOF when the stream ends before a
// frame starts; any later failure is a protocol error.
func (t *Transport) Read() (Packet, error) {
	var magic [3]byte
	if _, err := io.ReadFull(t.r, magic[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, truncated("magic", err)
	}
	if magic != Magic {
		return Packet{}, fmt.Errorf("%w: % x", ErrBadMagic, magic[:])
	}

	body, err := t.readBlock("json")
	if err != nil {
		return Packet{}, err
	}
	if !utf8.Valid(body) {
		return Packet{}, fmt.Errorf("%w: json body is not valid UTF-8", ErrMalformed)
	}
	var p Packet
	if err := json.Unmarshal(body, &p.Message); err != nil {
		return Packet{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	count, err := t.readUint64("attachment count")
	if err != nil {
		return Packet{}, err
	}
	// Each attachment needs at least its length prefix.
	if count > t.maxPayload/8 {
		return Packet{}, fmt.Errorf("%w: %d attachments", ErrPayloadTooLarge, count)
	}
	if count > 0 {
		p.Payloads = make([][]byte, 0, count)
	}
	for i := range count {
		data, err := t.readBlock(fmt.Sprintf("attachment %d", i))
		if err != nil {
			return Packet{}, err
		}
		p.Payloads = append(p.Payloads, data)
	}
	if int(count) != len(p.Message.BinaryAttachments) { //nolint:gosec // count is bounded above
		shade.Logger().Warn("protocol: attachment count differs from descriptors",
			"payloads", count, "descriptors", len(p.Message.BinaryAttachments))
	}
	shade.Logger().Debug("protocol: frame read", "json_bytes", len(body), "attachments", count)
	return p, nil
}

func (t *Transport) readUint64(what string) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(t.r, buf[:]); err != nil {
		return 0, truncated(what, err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (t *Transport) readBlock(what string) ([]byte, error) {
	n, err := t.readUint64(what + " length")
	if err != nil {
		return nil, err
	}
	if n > t.maxPayload {
		return nil, fmt.Errorf("%w: %s of %d bytes exceeds %d", ErrPayloadTooLarge, what, n, t.maxPayload)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(t.r, data); err != nil {
		return nil, truncated(what, err)
	}
	return data, nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: reading %s: %w", ErrMalformed, what, err)
}

// Write writes p as one frame and flushes. Descriptor sizes are taken from
// the payloads.
func (t *Transport) Write(p Packet) error {
	msg := p.Message
	if len(msg.BinaryAttachments) != len(p.Payloads) {
		return fmt.Errorf("%w: %d descriptors, %d payloads",
			ErrAttachmentMismatch, len(msg.BinaryAttachments), len(p.Payloads))
	}
	if msg.JSONRPC == "" {
		msg.JSONRPC = Version
	}
	if msg.BinaryAttachments == nil {
		msg.BinaryAttachments = []AttachmentDescriptor{}
	} else {
		descs := make([]AttachmentDescriptor, len(msg.BinaryAttachments))
		copy(descs, msg.BinaryAttachments)
		for i := range descs {
			descs[i].Size = uint64(len(p.Payloads[i]))
		}
		msg.BinaryAttachments = descs
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&msg); err != nil {
		return fmt.Errorf("protocol: encode message: %w", err)
	}
	// Encode appends a newline.
	js := bytes.TrimSuffix(body.Bytes(), []byte{'\n'})

	t.wmu.Lock()
	defer t.wmu.Unlock()

	var lenBuf [8]byte
	write := func(b []byte) error {
		_, err := t.w.Write(b)
		return err
	}
	putLen := func(n uint64) error {
		binary.LittleEndian.PutUint64(lenBuf[:], n)
		return write(lenBuf[:])
	}

	if err := write(Magic[:]); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	if err := putLen(uint64(len(js))); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	if err := write(js); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	if err := putLen(uint64(len(p.Payloads))); err != nil {
		return fmt.Errorf("protocol: write: %w", err)
	}
	for _, data := range p.Payloads {
		if err := putLen(uint64(len(data))); err != nil {
			return fmt.Errorf("protocol: write: %w", err)
		}
		if err := write(data); err != nil {
			return fmt.Errorf("protocol: write: %w", err)
		}
	}
	if err := t.w.Flush(); err != nil {
		return fmt.Errorf("protocol: flush: %w", err)
	}
	shade.Logger().Debug("protocol: frame written", "json_bytes", len(js), "attachments", len(p.Payloads))
	return nil
}
