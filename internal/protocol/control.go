package protocol

import "github.com/goccy/go-json"

// Message type tags used on both legs of the relay. Client commands and server
// responses form a closed vocabulary so the relay dispatch is exhaustive.
const (
	TypeFrame               = "frame"
	TypeInit                = "init"
	TypeReady               = "ready"
	TypePing                = "ping"
	TypePong                = "pong"
	TypePause               = "pause"
	TypeResume              = "resume"
	TypeCapture             = "capture"
	TypePaused              = "paused"
	TypeResumed             = "resumed"
	TypeCaptureAcknowledged = "capture_acknowledged"
	TypeError               = "error"
)

// Error codes carried in ErrorMessage.
const (
	ErrCodeInvalidJSON          = "invalid_json"
	ErrCodeNoReference          = "no_reference"
	ErrCodeAIConnectionFailed   = "ai_connection_failed"
	ErrCodeAIProcessingError    = "ai_processing_error"
	ErrCodeFrameProcessingError = "frame_processing_error"
	ErrCodeUpstreamDisconnected = "upstream_disconnected"
)

// ClientCommand is a text control message received from the client.
type ClientCommand struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// ServerMessage is a text control message sent to the client.
type ServerMessage struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id,omitempty"`
	Message   string  `json:"message,omitempty"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// ErrorMessage is the error control response; ErrorCode is machine-readable,
// Message is for humans.
type ErrorMessage struct {
	Type      string `json:"type"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// InitMessage opens the upstream handshake.
type InitMessage struct {
	Type             string  `json:"type"`
	SessionID        string  `json:"session_id"`
	NailReferenceURL string  `json:"nail_reference_url"`
	Timestamp        float64 `json:"timestamp"`
}

// UpstreamControl is a text message received from the AI service: the `ready`
// handshake acknowledgment or an error/status update.
type UpstreamControl struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// MarshalServerMessage serializes a server control response.
func MarshalServerMessage(m ServerMessage) []byte {
	raw, _ := json.Marshal(m)
	return raw
}

// MarshalError serializes an error control response.
func MarshalError(code, message string) []byte {
	raw, _ := json.Marshal(ErrorMessage{Type: TypeError, ErrorCode: code, Message: message})
	return raw
}

// ParseClientCommand parses a client text message into a command.
func ParseClientCommand(data []byte) (ClientCommand, error) {
	var cmd ClientCommand
	err := json.Unmarshal(data, &cmd)
	return cmd, err
}
