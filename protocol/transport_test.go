package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(t *testing.T, p Packet) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewTransport(nil, &buf).Write(p))
	return buf.Bytes()
}

func TestTransportRoundTrip(t *testing.T) {
	req, err := NewRequest(42, MethodProcessImage, map[string]any{"output_format": "png"})
	require.NoError(t, err)
	p := Packet{Message: req}
	p.Attach("img", "image/png", []byte{1, 2, 3, 4, 5})

	var buf bytes.Buffer
	tr := NewTransport(&buf, &buf)
	require.NoError(t, tr.Write(p))

	got, err := tr.Read()
	require.NoError(t, err)
	assert.Equal(t, Version, got.Message.JSONRPC)
	assert.Equal(t, uint64(42), got.Message.IDValue())
	assert.Equal(t, MethodProcessImage, got.Message.Method)
	assert.JSONEq(t, `{"output_format":"png"}`, string(got.Message.Params))
	assert.Equal(t, []AttachmentDescriptor{{ID: "img", ContentType: "image/png", Size: 5}}, got.Message.BinaryAttachments)

	data, ok := got.Attachment("img")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, data)

	_, err = tr.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransportWireLayout(t *testing.T) {
	m, err := NewResponse(7, nil)
	require.NoError(t, err)
	p := Packet{Message: m}
	p.Attach("a", "application/octet-stream", []byte("xy"))
	b := frame(t, p)

	require.Equal(t, []byte("SHD"), b[:3])
	n := binary.LittleEndian.Uint64(b[3:11])
	js := b[11 : 11+n]
	var env map[string]any
	require.NoError(t, json.Unmarshal(js, &env))
	assert.Equal(t, "2.0", env["jsonrpc"])
	assert.Nil(t, env["result"])
	assert.Contains(t, env, "result")

	rest := b[11+n:]
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(rest[:8]))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(rest[8:16]))
	assert.Equal(t, []byte("xy"), rest[16:])
}

func TestTransportEmptyAttachmentsSerialized(t *testing.T) {
	m, err := NewNotification("progress", nil)
	require.NoError(t, err)
	b := frame(t, Packet{Message: m})
	n := binary.LittleEndian.Uint64(b[3:11])
	assert.Contains(t, string(b[11:11+n]), `"binary_attachments":[]`)
	assert.NotContains(t, string(b[11:11+n]), `"id"`)
}

func TestTransportSizesFromPayloads(t *testing.T) {
	m, _ := NewResponse(1, "ok")
	m.BinaryAttachments = []AttachmentDescriptor{{ID: "x", ContentType: "image/png", Size: 999}}
	b := frame(t, Packet{Message: m, Payloads: [][]byte{{9, 9}}})

	got, err := NewTransport(bytes.NewReader(b), nil).Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Message.BinaryAttachments[0].Size)
	assert.Equal(t, uint64(999), m.BinaryAttachments[0].Size, "caller's descriptors must not be modified")
}

func TestTransportWriteMismatch(t *testing.T) {
	m, _ := NewResponse(1, nil)
	err := NewTransport(nil, io.Discard).Write(Packet{Message: m, Payloads: [][]byte{{1}}})
	assert.ErrorIs(t, err, ErrAttachmentMismatch)
}

func TestTransportReadErrors(t *testing.T) {
	good := func() []byte {
		m, _ := NewRequest(1, MethodShutdown, nil)
		p := Packet{Message: m}
		p.Attach("a", "x", []byte("payload"))
		return frame(t, p)
	}
	le := func(n uint64) []byte { return binary.LittleEndian.AppendUint64(nil, n) }
	withBody := func(body string) []byte {
		b := append([]byte("SHD"), le(uint64(len(body)))...)
		b = append(b, body...)
		return append(b, le(0)...)
	}

	big := Packet{}
	big.Message, _ = NewResponse(1, nil)
	big.Attach("a", "x", make([]byte, 200))
	bigAttachment := frame(t, big)

	tests := []struct {
		name    string
		data    []byte
		opts    []TransportOption
		wantErr error
	}{
		{"bad magic", append([]byte("XYZ"), good()[3:]...), nil, ErrBadMagic},
		{"partial magic", []byte("SH"), nil, ErrMalformed},
		{"truncated length", []byte("SHD\x01\x02"), nil, ErrMalformed},
		{"truncated json", good()[:20], nil, ErrMalformed},
		{"truncated attachment", good()[:len(good())-3], nil, ErrMalformed},
		{"invalid json", withBody(`{"jsonrpc":`), nil, ErrMalformed},
		{"invalid utf8", withBody("{\"jsonrpc\":\"\xff\"}"), nil, ErrMalformed},
		{"json too large", good(), []TransportOption{WithMaxPayload(8)}, ErrPayloadTooLarge},
		{"attachment too large", bigAttachment, []TransportOption{WithMaxPayload(150)}, ErrPayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransport(bytes.NewReader(tt.data), nil, tt.opts...).Read()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsProtocolError(err))
		})
	}
}

func TestTransportCleanEOF(t *testing.T) {
	_, err := NewTransport(bytes.NewReader(nil), nil).Read()
	assert.Equal(t, io.EOF, err)
	assert.False(t, IsProtocolError(err))
}

func TestTransportHugeAttachmentCount(t *testing.T) {
	m, _ := NewResponse(1, nil)
	b := frame(t, Packet{Message: m})
	// Overwrite the trailing zero count.
	binary.LittleEndian.PutUint64(b[len(b)-8:], 1<<62)
	_, err := NewTransport(bytes.NewReader(b), nil).Read()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestTransportMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransport(&buf, &buf)
	for i := range uint64(3) {
		m, err := NewRequest(i, MethodGetAttachment, GetAttachmentParams{AttachmentID: "a"})
		require.NoError(t, err)
		require.NoError(t, tr.Write(Packet{Message: m}))
	}
	for i := range uint64(3) {
		got, err := tr.Read()
		require.NoError(t, err)
		assert.Equal(t, i, got.Message.IDValue())
	}
}
