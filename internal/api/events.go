package api

import (
	"log/slog"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// eventsHandler upgrades to a websocket and streams capture stage events as
// JSON text frames until the client goes away.
func eventsHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		events, cancel := svc.SubscribeEvents()
		done := make(chan struct{})

		// Reader goroutine: we never expect client frames, but reading is
		// the only way to notice a close.
		go func() {
			defer close(done)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		go func() {
			defer cancel()
			defer conn.Close()
			for {
				select {
				case payload, ok := <-events:
					if !ok {
						return
					}
					if err := wsutil.WriteServerText(conn, payload); err != nil {
						slog.Debug("event feed write failed", "error", err)
						return
					}
				case <-done:
					return
				}
			}
		}()
	}
}
