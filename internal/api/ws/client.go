// Package ws bridges the live event hub to WebSocket clients.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/pestvision/internal/live"
	"github.com/your-org/pestvision/internal/observability"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Handler upgrades requests and relays the live feed until the client
// disconnects. An optional stream_id query filters events to one camera.
func Handler(hub *live.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("ws upgrade failed", "error", err)
			return
		}

		streamFilter := c.Query("stream_id")
		sub := hub.Subscribe()
		observability.WSConnections.Inc()

		go writePump(conn, sub, streamFilter)
		go readPump(conn, sub)
	}
}

func writePump(conn *websocket.Conn, sub *live.Subscriber, streamFilter string) {
	defer conn.Close()
	for event := range sub.Events() {
		if streamFilter != "" && event.Detection.StreamID != streamFilter {
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("marshal live event", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readPump exists to detect disconnect; inbound messages are ignored.
func readPump(conn *websocket.Conn, sub *live.Subscriber) {
	defer func() {
		sub.Close()
		conn.Close()
		observability.WSConnections.Dec()
		slog.Debug("ws client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
