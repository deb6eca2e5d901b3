// Package relay runs the per-connection try-on session actor: it owns one
// client WebSocket and one upstream AI client, drives the session state
// machine and accumulates throughput statistics.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
	"github.com/missland/tryon-service/internal/protocol"
	"github.com/missland/tryon-service/internal/upstream"
)

// Close codes sent to the client on fatal connect-time failures.
const (
	CloseSessionExpired  = 4001
	CloseNoReference     = 4002
	CloseUpstreamFailed  = 4003
	CloseSessionNotFound = 4004
)

// SessionStore is the persistence surface the relay needs (D: зависимость от
// абстракции). Implemented by service.SessionService.
type SessionStore interface {
	Get(token string) (*model.TryOnSession, error)
	UpdateStatus(token string, status model.SessionStatus) error
	UpdateStats(token string, stats model.SessionStats) error
}

// Upstream is the AI-service bridge for one session. Implemented by
// upstream.Client.
type Upstream interface {
	Connect(ctx context.Context, nailReferenceURL string) bool
	SendFrame(payload []byte, frameNumber int64) error
	ReceiveResult() (*upstream.Result, error)
	Disconnect()
}

// Conn is the subset of *websocket.Conn the relay uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Session is the actor handling one client connection. Not safe for reuse.
type Session struct {
	token string
	conn  Conn
	store SessionStore
	up    Upstream
	log   *zap.Logger

	// Now is the clock; replaced in tests.
	Now func() time.Time

	framesSent     int
	framesReceived int
	connectedAt    time.Time
	paused         bool
}

// New creates a relay session for one accepted client connection.
func New(token string, conn Conn, store SessionStore, up Upstream, log *zap.Logger) *Session {
	return &Session{
		token: token,
		conn:  conn,
		store: store,
		up:    up,
		log:   log,
		Now:   time.Now,
	}
}

// Run drives the session from connecting to completed. It returns when the
// client disconnects or a fatal connect-time failure closes the socket.
func (s *Session) Run(ctx context.Context) {
	sess, err := s.store.Get(s.token)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			s.log.Warn("session not found", zap.String("session_id", s.token))
			s.closeWith(CloseSessionNotFound, "session not found")
			return
		}
		s.log.Error("session lookup failed", zap.String("session_id", s.token), zap.Error(err))
		s.closeWith(websocket.CloseInternalServerErr, "session lookup failed")
		return
	}
	if sess.IsExpired(s.Now()) {
		s.log.Warn("session expired", zap.String("session_id", s.token))
		s.closeWith(CloseSessionExpired, "session expired")
		return
	}

	s.connectedAt = s.Now()
	if err := s.store.UpdateStatus(s.token, model.SessionStatusActive); err != nil {
		s.log.Warn("status update failed", zap.String("session_id", s.token), zap.Error(err))
	}
	// From here on teardown runs whatever happens: stats are persisted and the
	// session ends completed, matching the disconnect path.
	defer s.teardown()

	refURL := sess.NailReferenceURL()
	if refURL == "" {
		s.log.Error("no nail reference for session", zap.String("session_id", s.token))
		s.sendError(protocol.ErrCodeNoReference, "No nail reference image found")
		s.closeWith(CloseNoReference, "no nail reference")
		return
	}

	if !s.up.Connect(ctx, refURL) {
		s.log.Error("upstream connect failed", zap.String("session_id", s.token))
		s.sendError(protocol.ErrCodeAIConnectionFailed, "Could not connect to AI service")
		s.closeWith(CloseUpstreamFailed, "AI service unavailable")
		return
	}

	s.sendServer(protocol.ServerMessage{
		Type:      protocol.TypeReady,
		SessionID: s.token,
		Message:   "Connected to AI service, ready for frames",
	})
	s.log.Info("try-on session initialized", zap.String("session_id", s.token))

	s.loop()
}

// loop is the active/paused relay loop; it exits on client disconnect or
// upstream loss.
func (s *Session) loop() {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Debug("client read error", zap.String("session_id", s.token), zap.Error(err))
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := s.handleFrame(data); err != nil {
				// Upstream lost mid-session: the client has been notified,
				// end the session cleanly. No reconnect is attempted.
				s.closeWith(websocket.CloseNormalClosure, "upstream disconnected")
				return
			}
		case websocket.TextMessage:
			s.handleControl(data)
		}
	}
}

// handleFrame relays one camera frame through the upstream client and relays
// the processed result back. Per-frame errors are recoverable: the frame is
// dropped, the client is notified, the session continues. A lost upstream
// connection is returned as a fatal error.
func (s *Session) handleFrame(data []byte) error {
	header, payload, err := protocol.DecodeFrame(data)
	if err != nil {
		s.log.Warn("malformed frame", zap.String("session_id", s.token), zap.Error(err))
		s.sendError(protocol.ErrCodeFrameProcessingError, err.Error())
		return nil
	}

	// Pause gates frame relay: frames arriving while paused are dropped
	// without forwarding and without counting.
	if s.paused {
		return nil
	}

	if err := s.up.SendFrame(payload, header.FrameNumber); err != nil {
		s.log.Warn("frame forward failed", zap.String("session_id", s.token), zap.Error(err))
		s.sendError(protocol.ErrCodeFrameProcessingError, err.Error())
		return nil
	}
	s.framesSent++

	// Synchronous per-frame round-trip: at most one in-flight frame per
	// direction.
	res, err := s.up.ReceiveResult()
	if err != nil {
		if errors.Is(err, errs.ErrUpstreamClosed) || errors.Is(err, errs.ErrNotConnected) {
			s.sendError(protocol.ErrCodeUpstreamDisconnected, "AI service connection lost")
			return errs.ErrUpstreamClosed
		}
		s.log.Warn("upstream result error", zap.String("session_id", s.token), zap.Error(err))
		s.sendError(protocol.ErrCodeFrameProcessingError, err.Error())
		return nil
	}

	if res.Binary {
		msg, err := protocol.EncodeFrame(res.Header, res.Payload)
		if err != nil {
			s.sendError(protocol.ErrCodeFrameProcessingError, err.Error())
			return nil
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			s.log.Debug("client write failed", zap.String("session_id", s.token), zap.Error(err))
			return nil
		}
		s.framesReceived++
		return nil
	}

	if res.Control.Type == protocol.TypeError {
		s.sendError(protocol.ErrCodeAIProcessingError, res.Control.Message)
	}
	return nil
}

// handleControl dispatches a client text message: pause, resume, capture,
// ping. Malformed JSON is reported and the session stays active.
func (s *Session) handleControl(data []byte) {
	cmd, err := protocol.ParseClientCommand(data)
	if err != nil {
		s.log.Warn("invalid control message", zap.String("session_id", s.token))
		s.sendError(protocol.ErrCodeInvalidJSON, "Invalid message format")
		return
	}

	switch cmd.Type {
	case protocol.TypePause:
		s.paused = true
		if err := s.store.UpdateStatus(s.token, model.SessionStatusPaused); err != nil {
			s.log.Warn("status update failed", zap.String("session_id", s.token), zap.Error(err))
		}
		s.sendServer(protocol.ServerMessage{Type: protocol.TypePaused, Message: "Session paused"})
	case protocol.TypeResume:
		s.paused = false
		if err := s.store.UpdateStatus(s.token, model.SessionStatusActive); err != nil {
			s.log.Warn("status update failed", zap.String("session_id", s.token), zap.Error(err))
		}
		s.sendServer(protocol.ServerMessage{Type: protocol.TypeResumed, Message: "Session resumed"})
	case protocol.TypeCapture:
		// Persistence of the captured result happens via the REST capture
		// endpoint; the socket only acknowledges.
		s.sendServer(protocol.ServerMessage{Type: protocol.TypeCaptureAcknowledged, Message: "Capture request received"})
	case protocol.TypePing:
		s.sendServer(protocol.ServerMessage{Type: protocol.TypePong, Timestamp: cmd.Timestamp})
	default:
		s.log.Debug("unknown control message", zap.String("session_id", s.token), zap.String("type", cmd.Type))
	}
}

// teardown disconnects the upstream client, persists final statistics and
// marks the session completed.
func (s *Session) teardown() {
	s.up.Disconnect()

	duration := s.Now().Sub(s.connectedAt).Seconds()
	avgFPS := 0.0
	if duration > 0 {
		avgFPS = float64(s.framesSent) / duration
	}
	stats := model.SessionStats{
		TotalFramesSent:     s.framesSent,
		TotalFramesReceived: s.framesReceived,
		DurationSeconds:     duration,
		AvgFPS:              avgFPS,
	}
	if err := s.store.UpdateStats(s.token, stats); err != nil {
		s.log.Warn("stats update failed", zap.String("session_id", s.token), zap.Error(err))
	}
	if err := s.store.UpdateStatus(s.token, model.SessionStatusCompleted); err != nil {
		s.log.Warn("status update failed", zap.String("session_id", s.token), zap.Error(err))
	}
	s.log.Info("try-on session completed",
		zap.String("session_id", s.token),
		zap.Int("frames_sent", s.framesSent),
		zap.Int("frames_received", s.framesReceived),
		zap.Float64("duration_seconds", duration))
}

func (s *Session) sendServer(msg protocol.ServerMessage) {
	if err := s.conn.WriteMessage(websocket.TextMessage, protocol.MarshalServerMessage(msg)); err != nil {
		s.log.Debug("control send failed", zap.String("session_id", s.token), zap.Error(err))
	}
}

func (s *Session) sendError(code, message string) {
	if err := s.conn.WriteMessage(websocket.TextMessage, protocol.MarshalError(code, message)); err != nil {
		s.log.Debug("error send failed", zap.String("session_id", s.token), zap.Error(err))
	}
}

func (s *Session) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = s.conn.Close()
}
