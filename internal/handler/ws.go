package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/johndosdos/skillxchange/internal/apperr"
	"github.com/johndosdos/skillxchange/internal/auth"
	"github.com/johndosdos/skillxchange/internal/relay"
)

const pingInterval = 30 * time.Second

// ServeWs upgrades the connection and hands it to the hub. A valid ?token=
// joins the connection to its user's room right away; without one the
// client has to send a join event.
func ServeWs(h *relay.Hub, tokens auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var userID string
		if tok := r.URL.Query().Get("token"); tok != "" {
			id, err := tokens.ValidateJWT(tok)
			if err != nil {
				log.Printf("handler/ws: %v", err)
				writeError(w, r, apperr.Authentication("Invalid token"))
				return
			}
			userID = id.String()
		}

		// Server read/write timeouts must not apply to a long-lived socket.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Printf("handler/ws: failed to upgrade connection: %v", err)
			return
		}

		c := h.NewClient(conn)
		if !h.Add(ctx, c, userID) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		// The request context is cancelled once the handler returns, so the
		// read loop runs here.
		go c.WriteMessage(ctx)
		go c.Keepalive(ctx, pingInterval)
		c.ReadMessage(ctx)
	}
}
