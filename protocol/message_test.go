package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		err  *Error
		code int
		msg  string
	}{
		{ParseError(), -32700, "Parse error"},
		{InvalidRequest(), -32600, "Invalid request"},
		{MethodNotFound("frobnicate"), -32601, "Method not found: frobnicate"},
		{InvalidParams("Missing initialize parameters"), -32602, "Missing initialize parameters"},
		{InternalError("boom"), -32603, "boom"},
		{AttachmentNotFound("nope"), -32001, "Attachment not found: nope"},
		{NotInitialized(), -32002, "Server not initialized"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, tt.err.Code)
		assert.Equal(t, tt.msg, tt.err.Message)
		assert.Contains(t, tt.err.Error(), tt.msg)
	}
}

func TestErrorWithData(t *testing.T) {
	base := InternalError("decode failed")
	e := base.WithData(map[string]string{"format": "exr"})
	assert.JSONEq(t, `{"format":"exr"}`, string(e.Data))
	assert.Nil(t, base.Data, "WithData must not modify the receiver")
}

func TestMessageDecodeResult(t *testing.T) {
	resp, err := NewResponse(3, GetAttachmentResult{AttachmentID: "a", ContentType: "image/png", Size: 10})
	require.NoError(t, err)
	var got GetAttachmentResult
	require.NoError(t, resp.DecodeResult(&got))
	assert.Equal(t, uint64(10), got.Size)

	errResp := NewErrorResponse(3, AttachmentNotFound("a"))
	err = errResp.DecodeResult(&got)
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeAttachmentNotFound, rpcErr.Code)
}

func TestMessageKinds(t *testing.T) {
	req, _ := NewRequest(1, MethodInitialize, InitializeParams{})
	assert.True(t, req.IsRequest())
	assert.False(t, req.IsNotification())

	note, _ := NewNotification("log", nil)
	assert.True(t, note.IsNotification())
	assert.Empty(t, note.Params)
	assert.Equal(t, uint64(0), note.IDValue())

	resp, _ := NewResponse(1, nil)
	assert.False(t, resp.IsRequest())
	assert.Equal(t, json.RawMessage("null"), resp.Result)
}

func TestMessageRawParamsPassThrough(t *testing.T) {
	raw := json.RawMessage(`{"attachment_id":"x"}`)
	req, err := NewRequest(1, MethodGetAttachment, raw)
	require.NoError(t, err)
	var p GetAttachmentParams
	require.NoError(t, req.DecodeParams(&p))
	assert.Equal(t, "x", p.AttachmentID)
}
