package session

import (
	"net/http"

	"github.com/gokatarajesh/quiz-live/internal/server"
)

// HandleWebSocket upgrades the request and serves the session protocol on it.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.HandleConnection(conn)
}
