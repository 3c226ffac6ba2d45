package relay

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Handler upgrades agent connections and attaches them to b. The request
// stays open until the agent disconnects.
func Handler(b *Bridge, allowedOrigins []string) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.logger.Warnw("agent upgrade failed", "err", err)
			return
		}

		select {
		case <-b.Attach(conn):
		case <-r.Context().Done():
			_ = conn.Close()
		}
	})
}
