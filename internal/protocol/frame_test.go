package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	header := FrameHeader{
		Type:        TypeFrame,
		SessionID:   "a2f1c9e4-6d2b-4c3e-9f0a-1b2c3d4e5f60",
		FrameNumber: 42,
		Timestamp:   1756400000.25,
		ImageSize:   5,
	}
	payload := []byte{0x52, 0x49, 0x46, 0x46, 0xFF}

	msg, err := EncodeFrame(header, payload)
	require.NoError(t, err)
	require.Len(t, msg, HeaderSize+len(payload))

	got, gotPayload, err := DecodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, header, got)
	assert.Equal(t, payload, gotPayload)
}

func TestEncodeEmptyPayload(t *testing.T) {
	msg, err := EncodeFrame(FrameHeader{Type: TypeFrame, FrameNumber: 1}, nil)
	require.NoError(t, err)
	assert.Len(t, msg, HeaderSize)

	_, payload, err := DecodeFrame(msg)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestEncodeHeaderTooLarge(t *testing.T) {
	header := FrameHeader{Type: TypeFrame, SessionID: string(bytes.Repeat([]byte("x"), HeaderSize))}
	_, err := EncodeFrame(header, []byte("payload"))
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeShortMessage(t *testing.T) {
	for _, n := range []int{0, 1, HeaderSize - 1} {
		_, _, err := DecodeFrame(bytes.Repeat([]byte{0x01}, n))
		var fe *FramingError
		require.ErrorAs(t, err, &fe, "length %d", n)
	}
}

func TestDecodeInvalidHeaderJSON(t *testing.T) {
	msg := make([]byte, HeaderSize+4)
	copy(msg, []byte("{not json"))
	_, _, err := DecodeFrame(msg)
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeStripsTrailingNulls(t *testing.T) {
	raw := []byte(`{"type":"frame","frame_number":7}`)
	msg := make([]byte, HeaderSize+3)
	copy(msg, raw)
	copy(msg[HeaderSize:], []byte{1, 2, 3})

	header, payload, err := DecodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, int64(7), header.FrameNumber)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}
