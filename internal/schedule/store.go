package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// historyLimit is how many run records each schedule keeps.
const historyLimit = 10

// RunRecord is one completed run of a scheduled task.
type RunRecord struct {
	TS     int64  `json:"ts"`
	OK     bool   `json:"ok"`
	Output string `json:"output"`
}

// Schedule binds a task to a cron expression.
type Schedule struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	TaskID    string            `json:"task_id"`
	Cron      string            `json:"cron"`
	Enabled   bool              `json:"enabled"`
	Params    map[string]string `json:"params,omitempty"`
	LastRunTS int64             `json:"last_run_ts,omitempty"`
	History   []RunRecord       `json:"history,omitempty"`
}

// Store persists schedules as a single JSON file.
//
// The file is re-read on every access and rewritten atomically (temp file
// plus rename), so external edits are picked up on the next tick and a
// crash mid-write never leaves a torn file behind.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by the given file path. The parent
// directory is created if needed.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating schedule directory: %w", err)
	}
	return &Store{path: path}, nil
}

// List returns all schedules. A missing file is an empty list, not an
// error.
func (s *Store) List() ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the schedule with the given ID.
func (s *Store) Get(id string) (*Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range schedules {
		if schedules[i].ID == id {
			return &schedules[i], nil
		}
	}
	return nil, ErrScheduleNotFound
}

// Upsert validates and saves a schedule, assigning an ID if the caller
// left it empty.
func (s *Store) Upsert(sched *Schedule) error {
	if sched.TaskID == "" {
		return fmt.Errorf("schedule task_id is required")
	}
	if err := Validate(sched.Cron); err != nil {
		return err
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range schedules {
		if schedules[i].ID == sched.ID {
			schedules[i] = *sched
			replaced = true
			break
		}
	}
	if !replaced {
		schedules = append(schedules, *sched)
	}
	return s.save(schedules)
}

// Delete removes a schedule by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}

	kept := schedules[:0]
	for _, sched := range schedules {
		if sched.ID != id {
			kept = append(kept, sched)
		}
	}
	if len(kept) == len(schedules) {
		return ErrScheduleNotFound
	}
	return s.save(kept)
}

// MarkFired records that a schedule fired at the given unix second. It
// returns false without writing when the schedule already fired at that
// second, which is the guard against double-firing within one tick
// window.
func (s *Store) MarkFired(id string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range schedules {
		if schedules[i].ID != id {
			continue
		}
		if schedules[i].LastRunTS == ts {
			return false, nil
		}
		schedules[i].LastRunTS = ts
		return true, s.save(schedules)
	}
	return false, ErrScheduleNotFound
}

// AppendRun adds a run record to a schedule's history, trimming it to the
// most recent entries.
func (s *Store) AppendRun(id string, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules, err := s.load()
	if err != nil {
		return err
	}
	for i := range schedules {
		if schedules[i].ID != id {
			continue
		}
		history := append(schedules[i].History, rec)
		if len(history) > historyLimit {
			history = history[len(history)-historyLimit:]
		}
		schedules[i].History = history
		return s.save(schedules)
	}
	return ErrScheduleNotFound
}

func (s *Store) load() ([]Schedule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading schedules: %w", err)
	}

	var schedules []Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("parsing schedules: %w", err)
	}
	return schedules, nil
}

func (s *Store) save(schedules []Schedule) error {
	data, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".schedules-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()          //nolint:errcheck // Best effort cleanup on error path
		os.Remove(tmpName)   //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("writing schedules: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()          //nolint:errcheck // Best effort cleanup on error path
		os.Remove(tmpName)   //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("setting schedule file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("replacing schedules file: %w", err)
	}
	return nil
}
