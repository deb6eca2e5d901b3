package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/errs"
	"github.com/missland/tryon-service/internal/model"
	"github.com/missland/tryon-service/internal/protocol"
	"github.com/missland/tryon-service/internal/upstream"
)

const testToken = "11111111-2222-3333-4444-555555555555"

type scriptedMessage struct {
	messageType int
	data        []byte
}

type writtenMessage struct {
	messageType int
	data        []byte
}

// fakeConn replays a script of client messages and records everything the
// relay writes back.
type fakeConn struct {
	script []scriptedMessage

	written   []writtenMessage
	closeCode int
	closed    bool
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	if len(c.script) == 0 {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	msg := c.script[0]
	c.script = c.script[1:]
	return msg.messageType, msg.data, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.written = append(c.written, writtenMessage{messageType, data})
	return nil
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		c.closeCode = int(binary.BigEndian.Uint16(data[:2]))
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

// textMessages decodes every text message written to the client.
func (c *fakeConn) textMessages(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, w := range c.written {
		if w.messageType != websocket.TextMessage {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(w.data, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) binaryMessages() [][]byte {
	var out [][]byte
	for _, w := range c.written {
		if w.messageType == websocket.BinaryMessage {
			out = append(out, w.data)
		}
	}
	return out
}

type fakeStore struct {
	session *model.TryOnSession
	getErr  error

	statuses []model.SessionStatus
	stats    *model.SessionStats
}

func (s *fakeStore) Get(token string) (*model.TryOnSession, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.session == nil || s.session.Token != token {
		return nil, errs.ErrSessionNotFound
	}
	return s.session, nil
}

func (s *fakeStore) UpdateStatus(_ string, status model.SessionStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) UpdateStats(_ string, stats model.SessionStats) error {
	s.stats = &stats
	return nil
}

type fakeUpstream struct {
	connectOK  bool
	sendErr    error
	receiveErr error
	results    []*upstream.Result

	connectRef   string
	framesSent   []int64
	disconnected bool
}

func (u *fakeUpstream) Connect(_ context.Context, nailReferenceURL string) bool {
	u.connectRef = nailReferenceURL
	return u.connectOK
}

func (u *fakeUpstream) SendFrame(_ []byte, frameNumber int64) error {
	if u.sendErr != nil {
		return u.sendErr
	}
	u.framesSent = append(u.framesSent, frameNumber)
	return nil
}

func (u *fakeUpstream) ReceiveResult() (*upstream.Result, error) {
	if u.receiveErr != nil {
		return nil, u.receiveErr
	}
	if len(u.results) == 0 {
		return nil, errs.ErrUpstreamClosed
	}
	res := u.results[0]
	u.results = u.results[1:]
	return res, nil
}

func (u *fakeUpstream) Disconnect() { u.disconnected = true }

func validSession(now time.Time) *model.TryOnSession {
	ref := "http://media.local/nails/ref.jpg"
	return &model.TryOnSession{
		Token:                 testToken,
		Status:                string(model.SessionStatusInitializing),
		NailReferenceImageURL: &ref,
		ExpiresAt:             now.Add(30 * time.Minute),
	}
}

func newTestSession(conn Conn, store SessionStore, up Upstream) *Session {
	s := New(testToken, conn, store, up, zap.NewNop())
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	return s
}

func encodeFrame(t *testing.T, frameNumber int64, payload []byte) []byte {
	t.Helper()
	msg, err := protocol.EncodeFrame(protocol.FrameHeader{
		Type:        protocol.TypeFrame,
		SessionID:   testToken,
		FrameNumber: frameNumber,
		ImageSize:   len(payload),
	}, payload)
	require.NoError(t, err)
	return msg
}

func command(t *testing.T, cmdType string) scriptedMessage {
	t.Helper()
	raw, err := json.Marshal(protocol.ClientCommand{Type: cmdType})
	require.NoError(t, err)
	return scriptedMessage{websocket.TextMessage, raw}
}

func TestRunSessionNotFound(t *testing.T) {
	conn := &fakeConn{}
	store := &fakeStore{}
	up := &fakeUpstream{}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, CloseSessionNotFound, conn.closeCode)
	assert.True(t, conn.closed)
	assert.Empty(t, store.statuses, "no status transitions for unknown session")
	assert.Nil(t, store.stats)
	assert.False(t, up.disconnected)
}

func TestRunSessionExpired(t *testing.T) {
	conn := &fakeConn{}
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	sess := validSession(now)
	sess.ExpiresAt = now.Add(-time.Minute)
	store := &fakeStore{session: sess}
	up := &fakeUpstream{connectOK: true}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, CloseSessionExpired, conn.closeCode)
	assert.Empty(t, store.statuses)
	assert.Empty(t, up.connectRef, "expired session must not reach upstream")
}

func TestRunNoNailReference(t *testing.T) {
	conn := &fakeConn{}
	sess := validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))
	sess.NailReferenceImageURL = nil
	store := &fakeStore{session: sess}
	up := &fakeUpstream{connectOK: true}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, CloseNoReference, conn.closeCode)
	msgs := conn.textMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ErrCodeNoReference, msgs[0]["error_code"])
	// Teardown still runs once the session was marked active.
	assert.Equal(t, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusCompleted}, store.statuses)
	assert.True(t, up.disconnected)
}

func TestRunUpstreamConnectFailure(t *testing.T) {
	conn := &fakeConn{}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: false}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, CloseUpstreamFailed, conn.closeCode)
	msgs := conn.textMessages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.ErrCodeAIConnectionFailed, msgs[0]["error_code"])
	assert.Equal(t, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusCompleted}, store.statuses)
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	processed := []byte{0x04, 0x05}
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.BinaryMessage, encodeFrame(t, 1, payload)},
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, results: []*upstream.Result{
		{Binary: true, Header: protocol.FrameHeader{Type: protocol.TypeFrame, FrameNumber: 1}, Payload: processed},
	}}

	newTestSession(conn, store, up).Run(context.Background())

	require.Equal(t, []int64{1}, up.framesSent)

	binaries := conn.binaryMessages()
	require.Len(t, binaries, 1)
	header, got, err := protocol.DecodeFrame(binaries[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), header.FrameNumber)
	assert.Equal(t, processed, got)

	msgs := conn.textMessages(t)
	require.NotEmpty(t, msgs)
	assert.Equal(t, protocol.TypeReady, msgs[0]["type"])

	require.NotNil(t, store.stats)
	assert.Equal(t, 1, store.stats.TotalFramesSent)
	assert.Equal(t, 1, store.stats.TotalFramesReceived)
	assert.Equal(t, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusCompleted}, store.statuses)
	assert.True(t, up.disconnected)
}

func TestMalformedFrameIsRecoverable(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.BinaryMessage, []byte("too short")},
		{websocket.BinaryMessage, encodeFrame(t, 1, []byte{0xAA})},
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, results: []*upstream.Result{
		{Binary: true, Header: protocol.FrameHeader{Type: protocol.TypeFrame, FrameNumber: 1}, Payload: []byte{0xBB}},
	}}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, []int64{1}, up.framesSent, "malformed frame dropped, session continues")
	var codes []string
	for _, m := range conn.textMessages(t) {
		if code, ok := m["error_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	assert.Equal(t, []string{protocol.ErrCodeFrameProcessingError}, codes)
}

func TestMalformedControlKeepsSessionActive(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.TextMessage, []byte("{not json")},
		command(t, protocol.TypePing),
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true}

	newTestSession(conn, store, up).Run(context.Background())

	msgs := conn.textMessages(t)
	require.Len(t, msgs, 3) // ready, invalid_json error, pong
	assert.Equal(t, protocol.ErrCodeInvalidJSON, msgs[1]["error_code"])
	assert.Equal(t, protocol.TypePong, msgs[2]["type"])
	assert.Equal(t, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusCompleted}, store.statuses)
}

func TestPauseGatesFrames(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		command(t, protocol.TypePause),
		{websocket.BinaryMessage, encodeFrame(t, 1, []byte{0x01})},
		command(t, protocol.TypeResume),
		{websocket.BinaryMessage, encodeFrame(t, 2, []byte{0x02})},
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, results: []*upstream.Result{
		{Binary: true, Header: protocol.FrameHeader{Type: protocol.TypeFrame, FrameNumber: 2}, Payload: []byte{0x03}},
	}}

	newTestSession(conn, store, up).Run(context.Background())

	assert.Equal(t, []int64{2}, up.framesSent, "frame sent while paused must be dropped")
	assert.Equal(t, []model.SessionStatus{
		model.SessionStatusActive,
		model.SessionStatusPaused,
		model.SessionStatusActive,
		model.SessionStatusCompleted,
	}, store.statuses)

	var types []string
	for _, m := range conn.textMessages(t) {
		types = append(types, m["type"].(string))
	}
	assert.Equal(t, []string{protocol.TypeReady, protocol.TypePaused, protocol.TypeResumed}, types)

	require.NotNil(t, store.stats)
	assert.Equal(t, 1, store.stats.TotalFramesSent)
	assert.Equal(t, 1, store.stats.TotalFramesReceived)
}

func TestCaptureAcknowledged(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{command(t, protocol.TypeCapture)}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true}

	newTestSession(conn, store, up).Run(context.Background())

	msgs := conn.textMessages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.TypeCaptureAcknowledged, msgs[1]["type"])
}

func TestUpstreamLostMidSession(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.BinaryMessage, encodeFrame(t, 1, []byte{0x01})},
		command(t, protocol.TypePing), // must never be reached
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, receiveErr: errs.ErrUpstreamClosed}

	newTestSession(conn, store, up).Run(context.Background())

	var codes []string
	for _, m := range conn.textMessages(t) {
		if code, ok := m["error_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	assert.Equal(t, []string{protocol.ErrCodeUpstreamDisconnected}, codes)
	assert.Equal(t, websocket.CloseNormalClosure, conn.closeCode)
	assert.Equal(t, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusCompleted}, store.statuses)
	assert.True(t, up.disconnected)
}

func TestPerFrameSendErrorIsRecoverable(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.BinaryMessage, encodeFrame(t, 1, []byte{0x01})},
		command(t, protocol.TypePing),
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, sendErr: errors.New("socket buffer full")}

	newTestSession(conn, store, up).Run(context.Background())

	msgs := conn.textMessages(t)
	require.Len(t, msgs, 3) // ready, frame error, pong
	assert.Equal(t, protocol.ErrCodeFrameProcessingError, msgs[1]["error_code"])
	assert.Equal(t, protocol.TypePong, msgs[2]["type"])
}

func TestUpstreamErrorControlForwarded(t *testing.T) {
	conn := &fakeConn{script: []scriptedMessage{
		{websocket.BinaryMessage, encodeFrame(t, 1, []byte{0x01})},
	}}
	store := &fakeStore{session: validSession(time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC))}
	up := &fakeUpstream{connectOK: true, results: []*upstream.Result{
		{Control: protocol.UpstreamControl{Type: protocol.TypeError, Message: "inference failed"}},
	}}

	newTestSession(conn, store, up).Run(context.Background())

	var codes []string
	for _, m := range conn.textMessages(t) {
		if code, ok := m["error_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	assert.Equal(t, []string{protocol.ErrCodeAIProcessingError}, codes)
	require.NotNil(t, store.stats)
	assert.Equal(t, 1, store.stats.TotalFramesSent)
	assert.Equal(t, 0, store.stats.TotalFramesReceived)
}
