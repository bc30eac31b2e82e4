package wsgateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mohamedkhairy/tick-averager/pkg/logger"
)

// Handler upgrades HTTP requests to WebSocket connections registered with the hub
type Handler struct {
	hub      *Hub
	auth     *AuthManager
	upgrader websocket.Upgrader
}

// NewHandler creates a WebSocket upgrade handler
func NewHandler(hub *Hub, auth *AuthManager) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP authenticates and upgrades the request
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.auth.Authenticate(r)
	if err != nil {
		logger.Debug("WebSocket authentication failed", logger.ErrorField(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if limit := h.hub.config.MaxConnections; limit > 0 && h.hub.ConnectionCount() >= limit {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection", logger.ErrorField(err))
		return
	}

	h.hub.Register(NewConnection(uuid.New().String(), userID, conn))
}
