package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/autoglm/autoglm-core/internal/autoglm"
)

// startProcessRequest is the request body for POST /process/start.
// All fields are optional; an empty body starts the engine with its
// configured defaults.
type startProcessRequest struct {
	DeviceID string `json:"device_id"`
	MaxSteps int    `json:"max_steps"`
	Lang     string `json:"lang"`
}

// inputRequest is the request body for POST /process/input.
type inputRequest struct {
	Text string `json:"text"`
}

// handleProcessStatus reports whether the engine is running, its PID,
// log location, and the current log size.
func (s *Server) handleProcessStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleProcessStart launches the engine process.
func (s *Server) handleProcessStart(w http.ResponseWriter, r *http.Request) {
	var req startProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	opts := autoglm.StartOptions{
		DeviceID: req.DeviceID,
		MaxSteps: req.MaxSteps,
		Lang:     req.Lang,
	}
	if err := s.engine.Start(r.Context(), opts); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleProcessStop terminates the engine process.
func (s *Server) handleProcessStop(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleProcessLogs returns a chunk of the engine log.
//
// Query parameters:
//   - offset: byte offset to read from (default: tail window)
//   - max_bytes: maximum bytes to return (default 32000)
//
// The response carries the content and the offset to poll from next.
func (s *Server) handleProcessLogs(w http.ResponseWriter, r *http.Request) {
	offset, ok := queryInt64(w, r, "offset", -1)
	if !ok {
		return
	}
	maxBytes, ok := queryInt64(w, r, "max_bytes", autoglm.DefaultTailBytes)
	if !ok {
		return
	}

	content, next, err := s.engine.TailLog(offset, maxBytes)
	if err != nil {
		writeInternalError(w, "failed to read engine log")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content":     content,
		"next_offset": next,
	})
}

// handleProcessInput writes a line to the engine's stdin.
func (s *Server) handleProcessInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeBadRequest(w, "text is required")
		return
	}

	if err := s.engine.SendInput(req.Text); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

// queryInt64 parses an int64 query parameter, writing a 400 response and
// returning ok=false when the value is present but malformed.
func queryInt64(w http.ResponseWriter, r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid "+name)
		return 0, false
	}
	return v, true
}
