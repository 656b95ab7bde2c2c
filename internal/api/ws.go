package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds every write to the peer; a client that stops reading
	// trips it and gets detached instead of pinning the handler.
	writeWait = 10 * time.Second

	// pongWait is how long the peer may stay silent; pings go out at
	// pingPeriod to keep a healthy connection inside that window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS is wide open on the REST surface; mirror that here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// runRequest is the first frame a client sends after connecting. A script is
// given inline or by catalog id; script_id wins when both are present.
type runRequest struct {
	Script   string `json:"script"`
	ScriptID string `json:"script_id"`
	TimeoutS int    `json:"timeout_s"`
}

// inboundFrame is any frame after the first. Only input frames are acted on.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// handleRunSocket runs a script over a WebSocket: the first frame names the
// script, every event is pushed as a JSON frame, and input frames are fed to
// the process's terminal. Disconnecting detaches the client without touching
// the process; its output keeps accumulating in the cache.
func (s *Server) handleRunSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("websocket upgrade", "execution_id", id, "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	s.logger.Info("run socket opened", "execution_id", id, "conn_id", connID)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var req runRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Debug("read run request", "conn_id", connID, "error", err)
		return
	}

	script := req.Script
	if req.ScriptID != "" {
		sc, ok := s.catalog.Get(req.ScriptID)
		if !ok {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteJSON(map[string]string{"error": "unknown script id: " + req.ScriptID})
			return
		}
		script = sc.Code
	}

	timeoutS := req.TimeoutS
	if timeoutS <= 0 {
		timeoutS = s.timeoutS
	}

	input := make(chan string, 16)
	stream := s.engine.Start(id, script, timeoutS, input)

	done := make(chan struct{})
	defer close(done)
	go readRunFrames(conn, input, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "execution finished"),
					time.Now().Add(writeWait),
				)
				s.logger.Info("run socket closed", "execution_id", id, "conn_id", connID)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				// Client gone or wedged: detach without killing the process.
				stream.Close()
				s.logger.Info("run socket detached", "execution_id", id, "conn_id", connID)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				stream.Close()
				s.logger.Info("run socket detached", "execution_id", id, "conn_id", connID)
				return
			}
		}
	}
}

// readRunFrames forwards input frames to the execution until the client or
// the handler goes away. Closing the input channel tells the engine the
// client is done typing.
func readRunFrames(conn *websocket.Conn, input chan<- string, done <-chan struct{}) {
	defer close(input)
	for {
		var f inboundFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type != "input" || f.Content == "" {
			continue
		}
		select {
		case input <- f.Content:
		case <-done:
			return
		}
	}
}
