package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clipforge/clipforge-engine/internal/export"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server binds to loopback only; cross-origin pages on the same
	// machine are the expected clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// EventMessage is one websocket frame: a timeline change notification or
// an export status update.
type EventMessage struct {
	Type    string         `json:"type"`
	Version uint64         `json:"version,omitempty"`
	Export  *export.Status `json:"export,omitempty"`
}

// eventsHandler upgrades the connection and fans timeline and export
// events out to it until either side closes.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.Logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		timelineEvents, unsubTimeline := cfg.Timeline.Subscribe()
		defer unsubTimeline()

		var exportEvents <-chan export.Status
		if cfg.Exporter != nil {
			var unsubExport func()
			exportEvents, unsubExport = cfg.Exporter.Subscribe()
			defer unsubExport()
		}

		// Reads are discarded; the loop only uses them to notice a close.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case <-r.Context().Done():
				return
			case ev := <-timelineEvents:
				msg := EventMessage{Type: ev.Type, Version: ev.Version}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case st := <-exportEvents:
				msg := EventMessage{Type: "export", Export: &st}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}
