package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/missland/tryon-service/internal/config"
	"github.com/missland/tryon-service/internal/relay"
	"github.com/missland/tryon-service/internal/service"
	"github.com/missland/tryon-service/internal/upstream"
)

// TryOnWSHandler handles WebSocket connections for /ws/try-on/:session_token.
// Each accepted connection runs one relay session actor owning a client socket
// and an upstream AI client; sessions share no in-process state.
type TryOnWSHandler struct {
	sessions   *service.SessionService
	upgrader   websocket.Upgrader
	maxMsgSize int64
	upOpts     upstream.Options
	logger     *zap.Logger
}

// NewTryOnWSHandler creates the try-on WebSocket handler.
func NewTryOnWSHandler(sessions *service.SessionService, cfg *config.Config, logger *zap.Logger) *TryOnWSHandler {
	return &TryOnWSHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WSReadBufferSize,
			WriteBufferSize: cfg.WSWriteBufferSize,
			// Allow all origins for dev; in prod set CheckOrigin.
		},
		maxMsgSize: cfg.WSMaxMessageSize,
		upOpts: upstream.Options{
			BaseURL:          cfg.AIServiceURL,
			HandshakeTimeout: cfg.AIHandshakeTimeout,
			HeartbeatPeriod:  cfg.AIHeartbeatPeriod,
		},
		logger: logger,
	}
}

// ServeWS upgrades the request and runs the relay state machine. Session
// validation (not found, expired) happens after the upgrade so the relay can
// reject with the protocol's distinct close codes.
func (h *TryOnWSHandler) ServeWS(c *gin.Context) {
	token := c.Param("session_token")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}

	h.logger.Info("try-on connection request", zap.String("session_id", token))

	up := upstream.NewClient(token, h.upOpts, h.logger)
	sess := relay.New(token, conn, h.sessions, up, h.logger)
	sess.Run(c.Request.Context())
}
