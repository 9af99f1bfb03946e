package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/edgerelay/internal/models"
	"github.com/prudhvinik1/edgerelay/internal/realtime"
	"github.com/prudhvinik1/edgerelay/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients are browsers served from other origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler upgrades clients to the realtime channel.
type WSHandler struct {
	coord          *realtime.Coordinator
	auth           Authenticator
	sendBufferSize int
	maxFrameBytes  int64
	log            *slog.Logger
}

func NewWSHandler(coord *realtime.Coordinator, auth Authenticator, sendBufferSize int, maxFrameBytes int64, log *slog.Logger) *WSHandler {
	return &WSHandler{
		coord:          coord,
		auth:           auth,
		sendBufferSize: sendBufferSize,
		maxFrameBytes:  maxFrameBytes,
		log:            log,
	}
}

// ServeHTTP runs one session until the client goes away. A token is optional;
// when present it must be valid and pins the identity the client may claim.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var trusted models.UserID
	if token := tokenFromRequest(r); token != "" {
		id, err := h.auth.Authenticate(r.Context(), token)
		if errors.Is(err, services.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if err != nil {
			h.log.Error("Failed to authenticate upgrade", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		trusted = id
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied
		h.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn := realtime.NewConn(ws, h.sendBufferSize, h.log)
	h.coord.Attach(conn)
	go conn.WritePump()

	h.log.Debug("Client connected", "conn_id", conn.ID(), "remote_addr", r.RemoteAddr, "user_id", trusted)
	realtime.NewSession(conn, h.coord, trusted, h.log).Run(r.Context(), ws, h.maxFrameBytes)
}
