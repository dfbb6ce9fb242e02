package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoglm/autoglm-core/internal/task"
)

// maxQueryParamLen limits URL parameter length to prevent DoS via oversized params.
const maxQueryParamLen = 100

// handleListTasks returns all stored tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

// handleGetTask returns a single task by ID.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid task ID")
		return
	}

	t, err := s.tasks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeNotFound(w, "task not found")
			return
		}
		writeInternalError(w, "failed to get task")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleCreateTask stores a new task.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.tasks.Create(r.Context(), &t); err != nil {
		if errors.Is(err, task.ErrInvalidTask) || errors.Is(err, task.ErrInvalidStep) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to create task")
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// handleUpdateTask replaces an existing task.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid task ID")
		return
	}

	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	t.ID = id

	if err := s.tasks.Update(r.Context(), &t); err != nil {
		switch {
		case errors.Is(err, task.ErrTaskNotFound):
			writeNotFound(w, "task not found")
		case errors.Is(err, task.ErrInvalidTask), errors.Is(err, task.ErrInvalidStep):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update task")
		}
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleDeleteTask removes a task.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid task ID")
		return
	}

	if err := s.tasks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeNotFound(w, "task not found")
			return
		}
		writeInternalError(w, "failed to delete task")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// runTaskRequest is the request body for POST /tasks/{id}/run.
type runTaskRequest struct {
	Params map[string]string `json:"params"`
}

// stepResultView is a step outcome as returned by the run endpoint.
type stepResultView struct {
	Type   string `json:"type"`
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
}

// handleRunTask executes a stored task immediately and returns the
// per-step results. A step failure is not an HTTP error: the response
// carries ok=false and the partial results so the client can show which
// step broke.
func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid task ID")
		return
	}

	// An empty or missing body means no parameters.
	var req runTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if s.executor == nil {
		writeInternalError(w, "task execution is not available")
		return
	}

	results, err := s.executor.Execute(r.Context(), id, req.Params)
	if err != nil && !errors.Is(err, task.ErrStepFailed) {
		writeDomainError(w, err)
		return
	}

	views := make([]stepResultView, 0, len(results))
	for _, res := range results {
		views = append(views, stepResultView{Type: string(res.Type), OK: res.OK, Output: res.Output})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      err == nil,
		"results": views,
		"summary": task.SummarizeResults(results),
	})
}
