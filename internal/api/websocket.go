package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Log stream constants.
const (
	// logStreamInterval is how often the engine log is polled for new bytes.
	logStreamInterval = time.Second

	// logStreamChunkBytes caps each websocket message.
	logStreamChunkBytes = 32 * 1024

	// logStreamWriteWait bounds a single websocket write.
	logStreamWriteWait = 10 * time.Second

	// logStreamPingInterval keeps idle connections alive through proxies.
	logStreamPingInterval = 30 * time.Second
)

// logStreamMessage is one chunk of engine log pushed to the client.
type logStreamMessage struct {
	Content    string `json:"content"`
	NextOffset int64  `json:"next_offset"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleLogStream upgrades the connection and streams the engine log as
// it grows. The client may pass an offset query parameter to resume from
// a known position; by default streaming starts at the current log end.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	offset, ok := queryInt64(w, r, "offset", -1)
	if !ok {
		return
	}
	if offset < 0 {
		size, err := s.engine.LogSize()
		if err != nil {
			writeInternalError(w, "failed to size engine log")
			return
		}
		offset = size
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close() //nolint:errcheck // Connection teardown

	// Drain client frames so control messages are processed; the client
	// is not expected to send data.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(logStreamInterval)
	defer poll.Stop()
	ping := time.NewTicker(logStreamPingInterval)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			deadline := time.Now().Add(logStreamWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-poll.C:
			content, next, err := s.engine.TailLog(offset, logStreamChunkBytes)
			if err != nil {
				s.logger.Warn("log stream read failed", "error", err)
				return
			}
			if content == "" {
				continue
			}
			offset = next

			//nolint:errcheck // Deadline errors surface on the write below
			conn.SetWriteDeadline(time.Now().Add(logStreamWriteWait))
			if err := conn.WriteJSON(logStreamMessage{Content: content, NextOffset: offset}); err != nil {
				return
			}
		}
	}
}
