package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// The default origin check applies: the session cookie must not be usable
// from another site's page.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, sess Session) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: job_id is required", ErrInvalidRequest))
		return
	}
	if _, err := s.jobMgr.GetJob(jobID); err != nil {
		writeError(w, 0, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before reading the initial state so no update is missed
	updates := s.jobMgr.Subscribe(jobID)
	defer s.jobMgr.Unsubscribe(jobID, updates)

	job, err := s.jobMgr.GetJob(jobID)
	if err != nil {
		return
	}
	if !s.sendJob(conn, job) || job.Status.Done() {
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if !s.sendJob(conn, job) {
				return
			}

			// Close connection if job is done
			if job.Status.Done() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status)))
				return
			}

		case <-ticker.C:
			// Send ping to keep connection alive
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.shutdown.Context().Done():
			return
		}
	}
}

func (s *Server) sendJob(conn *websocket.Conn, job Job) bool {
	data, err := json.Marshal(s.jobToResponse(job))
	if err != nil {
		s.logger.Error("Failed to marshal job: %v", err)
		return true
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to write WebSocket message: %v", err)
		return false
	}
	return true
}
