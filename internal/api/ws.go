package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/huddle/internal/gateway"
	"github.com/lalith-99/huddle/internal/middleware"
	"go.uber.org/zap"
)

// WSHandler upgrades authenticated requests into gateway sessions.
type WSHandler struct {
	hub      *gateway.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler accepts upgrades from any origin when allowedOrigins is
// empty. The token is already checked by the auth middleware.
func NewWSHandler(hub *gateway.Hub, allowedOrigins []string, logger *zap.Logger) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		logger: logger,
	}
}

// Serve handles GET /v1/ws and blocks until the session ends.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(conn, middleware.GetTenantID(c), middleware.GetSender(c))
}
