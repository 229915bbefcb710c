package api

import (
	"net/http"

	"github.com/amityvox/notifyhub/internal/socket"
)

// handleSocketUpgrade accepts the WebSocket handshake and blocks for the
// lifetime of the connection: socket.Client.Run drives the in-band
// authenticate handshake, the on-connect flush, and the read/write pumps
// until the client disconnects (spec §4.5/§6).
func (s *Server) handleSocketUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.Sockets == nil {
		WriteError(w, http.StatusServiceUnavailable, "socket_unavailable", "socket service not configured")
		return
	}

	client, err := socket.Upgrade(s.Sockets.Hub(), s.Sockets, s.AuthService, w, r, s.Logger)
	if err != nil {
		s.Logger.Warn("socket upgrade failed", "error", err.Error())
		return
	}
	client.Run(r.Context())
}
