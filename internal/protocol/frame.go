// Package protocol implements the binary wire format shared by both legs of the
// try-on relay: a fixed 1024-byte zero-padded JSON header followed by the raw
// image payload.
package protocol

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// HeaderSize is the fixed size of the leading JSON header region.
const HeaderSize = 1024

// FrameHeader is the JSON document occupying the first HeaderSize bytes of a
// binary frame message. ImageSize is informational; the authoritative payload
// length is derived from slicing, never trusted from the header.
type FrameHeader struct {
	Type        string  `json:"type"`
	SessionID   string  `json:"session_id"`
	FrameNumber int64   `json:"frame_number"`
	Timestamp   float64 `json:"timestamp"`
	ImageSize   int     `json:"image_size"`
}

// FramingError reports a malformed frame message. Per-frame framing errors are
// recoverable: the frame is dropped and the session continues.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing: %s: %v", e.Reason, e.Err)
	}
	return "framing: " + e.Reason
}

func (e *FramingError) Unwrap() error { return e.Err }

// EncodeFrame serializes header to JSON, right-pads it with 0x00 to exactly
// HeaderSize bytes and concatenates the payload. Fails if the serialized
// header exceeds HeaderSize.
func EncodeFrame(header FrameHeader, payload []byte) ([]byte, error) {
	raw, err := json.Marshal(header)
	if err != nil {
		return nil, &FramingError{Reason: "marshal header", Err: err}
	}
	if len(raw) > HeaderSize {
		return nil, &FramingError{Reason: fmt.Sprintf("header %d bytes exceeds %d", len(raw), HeaderSize)}
	}
	out := make([]byte, HeaderSize+len(payload))
	copy(out, raw)
	copy(out[HeaderSize:], payload)
	return out, nil
}

// DecodeFrame splits a binary message into its header and payload. The header
// is bytes [0,HeaderSize) with trailing null bytes stripped; the payload is
// everything after.
func DecodeFrame(message []byte) (FrameHeader, []byte, error) {
	var header FrameHeader
	if len(message) < HeaderSize {
		return header, nil, &FramingError{Reason: fmt.Sprintf("message %d bytes shorter than header size %d", len(message), HeaderSize)}
	}
	raw := bytes.TrimRight(message[:HeaderSize], "\x00")
	if err := json.Unmarshal(raw, &header); err != nil {
		return header, nil, &FramingError{Reason: "invalid header JSON", Err: err}
	}
	return header, message[HeaderSize:], nil
}
