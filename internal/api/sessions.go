package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autoglm/autoglm-core/internal/session"
)

// sessionView is the wire shape of an interactive session.
type sessionView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func sessionViewOf(sess *session.Session) sessionView {
	return sessionView{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
	}
}

// sendRequest is the request body for POST /sessions/{id}/send.
type sendRequest struct {
	Text string `json:"text"`
}

// handleListSessions returns all open sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionViewOf(sess))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views, "count": len(views)})
}

// handleCreateSession opens a new interactive session anchored at the
// current end of the engine log.
func (s *Server) handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.sessions.Create()
	if err != nil {
		writeInternalError(w, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sessionViewOf(sess))
}

// handleSessionSend forwards a line of text to the engine on behalf of a
// session and returns the collected reply lines.
func (s *Server) handleSessionSend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid session ID")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeBadRequest(w, "text is required")
		return
	}

	lines, err := s.sessions.Send(r.Context(), id, req.Text)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": lines})
}

// handleSessionLog returns the tail of a session's transcript.
func (s *Server) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid session ID")
		return
	}

	// An unknown or evicted session yields an empty transcript.
	lines := s.sessions.Log(id)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"log": lines})
}

// handleRemoveSession closes a session. Removing an unknown session is
// a no-op.
func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid session ID")
		return
	}

	s.sessions.Remove(id)
	writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}
