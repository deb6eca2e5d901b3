// Package upstream implements the WebSocket client that bridges one try-on
// session to the AI inference service.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/protocol"
)

// Result is one inbound upstream message: either a processed binary frame
// (Binary true) or a text control/error message.
type Result struct {
	Binary  bool
	Header  protocol.FrameHeader
	Payload []byte
	Control protocol.UpstreamControl
}

// Options configures a Client. Zero values fall back to defaults matching the
// production service.
type Options struct {
	BaseURL          string        // e.g. ws://ai-tryon:8100
	HandshakeTimeout time.Duration // wait for `ready` ack, default 5s
	HeartbeatPeriod  time.Duration // `ping` control interval, default 20s
}

// Client manages one outbound WebSocket connection to the AI try-on service.
// One instance per active session; not shared across sessions.
type Client struct {
	sessionID string
	opts      Options
	dialer    *websocket.Dialer
	log       *zap.Logger

	mu        sync.Mutex // guards conn writes and connected flag
	conn      *websocket.Conn
	connected bool

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// NewClient creates a client for one session. Call Connect before use.
func NewClient(sessionID string, opts Options, log *zap.Logger) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 5 * time.Second
	}
	if opts.HeartbeatPeriod <= 0 {
		opts.HeartbeatPeriod = 20 * time.Second
	}
	return &Client{
		sessionID: sessionID,
		opts:      opts,
		dialer:    &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		log:       log,
	}
}

// Connected reports whether the client holds a live upstream connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect opens the WebSocket to the AI service, sends the init control
// message with the nail reference URL and waits up to the handshake timeout
// for a `ready` acknowledgment. Returns false (non-fatal) on timeout,
// connection refusal or an unexpected acknowledgment; any partially-open
// socket is torn down before returning. On success a background heartbeat
// loop is started for the life of the connection.
func (c *Client) Connect(ctx context.Context, nailReferenceURL string) bool {
	wsURL := fmt.Sprintf("%s/ws/tryon/%s", strings.TrimRight(c.opts.BaseURL, "/"), c.sessionID)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.log.Error("upstream dial failed",
			zap.String("session_id", c.sessionID),
			zap.String("url", wsURL),
			zap.Error(err))
		return false
	}
	c.conn = conn

	init := protocol.InitMessage{
		Type:             protocol.TypeInit,
		SessionID:        c.sessionID,
		NailReferenceURL: nailReferenceURL,
		Timestamp:        nowUnix(),
	}
	raw, _ := json.Marshal(init)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.log.Error("upstream init send failed", zap.String("session_id", c.sessionID), zap.Error(err))
		c.teardown()
		return false
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.HandshakeTimeout))
	_, ack, err := conn.ReadMessage()
	if err != nil {
		c.log.Error("upstream handshake timed out",
			zap.String("session_id", c.sessionID),
			zap.Duration("timeout", c.opts.HandshakeTimeout),
			zap.Error(err))
		c.teardown()
		return false
	}
	_ = conn.SetReadDeadline(time.Time{})

	var ctrl protocol.UpstreamControl
	if err := json.Unmarshal(ack, &ctrl); err != nil || ctrl.Type != protocol.TypeReady {
		c.log.Error("upstream returned unexpected handshake response",
			zap.String("session_id", c.sessionID),
			zap.ByteString("response", ack))
		c.teardown()
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.mu.Lock()
	c.connected = true
	c.heartbeatStop = stop
	c.heartbeatDone = done
	c.mu.Unlock()

	go c.heartbeatLoop(stop, done)

	c.log.Info("upstream connected", zap.String("session_id", c.sessionID))
	return true
}

// SendFrame encodes payload with a frame header and sends it as one binary
// message. Fails if not connected; the caller drops the frame, it is not
// retried.
func (c *Client) SendFrame(payload []byte, frameNumber int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return errs.ErrNotConnected
	}
	msg, err := protocol.EncodeFrame(protocol.FrameHeader{
		Type:        protocol.TypeFrame,
		SessionID:   c.sessionID,
		FrameNumber: frameNumber,
		Timestamp:   nowUnix(),
		ImageSize:   len(payload),
	}, payload)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
		return fmt.Errorf("upstream send frame: %w", err)
	}
	return nil
}

// ReceiveResult blocks on the next inbound upstream message. Binary messages
// are decoded as frames, text messages as control/error updates. A close or
// transport error marks the client disconnected and returns ErrUpstreamClosed.
func (c *Client) ReceiveResult() (*Result, error) {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return nil, errs.ErrNotConnected
	}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.log.Warn("upstream connection closed", zap.String("session_id", c.sessionID), zap.Error(err))
		return nil, errs.ErrUpstreamClosed
	}

	switch mt {
	case websocket.BinaryMessage:
		header, payload, err := protocol.DecodeFrame(data)
		if err != nil {
			return nil, err
		}
		return &Result{Binary: true, Header: header, Payload: payload}, nil
	case websocket.TextMessage:
		var ctrl protocol.UpstreamControl
		if err := json.Unmarshal(data, &ctrl); err != nil {
			return nil, fmt.Errorf("upstream control message: %w", err)
		}
		return &Result{Control: ctrl}, nil
	default:
		return nil, fmt.Errorf("upstream: unexpected message type %d", mt)
	}
}

// Disconnect is idempotent: stops the heartbeat loop (waiting for it to
// finish), closes the WebSocket and clears state. Never returns an error.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	stop := c.heartbeatStop
	done := c.heartbeatDone
	c.heartbeatStop = nil
	c.heartbeatDone = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	c.teardown()
	c.log.Info("upstream disconnected", zap.String("session_id", c.sessionID))
}

func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// heartbeatLoop sends a ping control message every heartbeat period to keep
// the upstream connection alive.
func (c *Client) heartbeatLoop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.opts.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			connected := c.connected
			if connected && conn != nil {
				ping, _ := json.Marshal(protocol.ClientCommand{Type: protocol.TypePing, Timestamp: nowUnix()})
				if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
					c.log.Warn("upstream heartbeat failed", zap.String("session_id", c.sessionID), zap.Error(err))
				}
			}
			c.mu.Unlock()
			if !connected {
				return
			}
		}
	}
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
