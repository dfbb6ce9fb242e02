package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autoglm/autoglm-core/internal/schedule"
	"github.com/autoglm/autoglm-core/internal/task"
)

// scheduleView is a schedule plus its computed next fire time.
type scheduleView struct {
	schedule.Schedule
	NextRun string `json:"next_run,omitempty"`
}

// viewOf annotates a schedule with its next run in the scheduler's
// time zone. A schedule whose cron never fires again gets no next_run.
func viewOf(sched schedule.Schedule) scheduleView {
	view := scheduleView{Schedule: sched}
	expr, err := schedule.Parse(sched.Cron)
	if err != nil {
		return view
	}
	next, err := expr.NextRun(time.Now())
	if err != nil {
		return view
	}
	view.NextRun = next.In(schedule.Location).Format(time.RFC3339)
	return view
}

// handleListSchedules returns all schedules with computed next run times.
func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	schedules, err := s.schedules.List()
	if err != nil {
		writeInternalError(w, "failed to list schedules")
		return
	}

	views := make([]scheduleView, 0, len(schedules))
	for _, sched := range schedules {
		views = append(views, viewOf(sched))
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views, "count": len(views)})
}

// handleGetSchedule returns a single schedule by ID.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid schedule ID")
		return
	}

	sched, err := s.schedules.Get(id)
	if err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeNotFound(w, "schedule not found")
			return
		}
		writeInternalError(w, "failed to get schedule")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(*sched))
}

// handleCreateSchedule stores a new schedule after checking that the
// referenced task exists.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sched.ID = ""

	if err := s.saveSchedule(w, r, &sched); err != nil {
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(sched))
}

// handleUpdateSchedule replaces an existing schedule.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid schedule ID")
		return
	}

	if _, err := s.schedules.Get(id); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeNotFound(w, "schedule not found")
			return
		}
		writeInternalError(w, "failed to get schedule")
		return
	}

	var sched schedule.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sched.ID = id

	if err := s.saveSchedule(w, r, &sched); err != nil {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sched))
}

// saveSchedule validates the task reference and persists the schedule,
// writing the error response itself on failure.
func (s *Server) saveSchedule(w http.ResponseWriter, r *http.Request, sched *schedule.Schedule) error {
	if sched.TaskID == "" {
		writeBadRequest(w, "schedule task_id is required")
		return errors.New("missing task_id")
	}
	if _, err := s.tasks.GetByID(r.Context(), sched.TaskID); err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			writeBadRequest(w, "schedule references unknown task")
			return err
		}
		writeInternalError(w, "failed to check task")
		return err
	}

	if err := s.schedules.Upsert(sched); err != nil {
		if errors.Is(err, schedule.ErrInvalidCron) {
			writeBadRequest(w, err.Error())
			return err
		}
		writeInternalError(w, "failed to save schedule")
		return err
	}
	return nil
}

// handleDeleteSchedule removes a schedule.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid schedule ID")
		return
	}

	if err := s.schedules.Delete(id); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			writeNotFound(w, "schedule not found")
			return
		}
		writeInternalError(w, "failed to delete schedule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}
