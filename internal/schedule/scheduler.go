package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoglm/autoglm-core/internal/task"
)

// Executor runs a task by ID. *task.Executor satisfies this.
type Executor interface {
	Execute(ctx context.Context, taskID string, params map[string]string) ([]task.StepResult, error)
}

// Logger is the minimal logging interface the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config contains scheduler dependencies.
type Config struct {
	Store    *Store
	Executor Executor
	Logger   Logger
}

// Scheduler fires schedules at second resolution.
//
// Every tick re-reads the store, so edits land without a restart. Three
// guards keep a schedule from double-firing: it must be enabled, its task
// must not already be mid-run, and its persisted last-fire second must
// differ from the current one. Runs execute in their own goroutines; a
// slow task delays nothing else.
type Scheduler struct {
	store  *Store
	exec   Executor
	logger Logger

	mu       sync.Mutex
	inFlight map[string]bool // keyed by task ID
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler from the given configuration.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Scheduler{
		store:    cfg.Store,
		exec:     cfg.Executor,
		logger:   cfg.Logger,
		inFlight: make(map[string]bool),
	}, nil
}

// Run ticks at 1Hz until ctx is cancelled, then waits for in-flight task
// runs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for running tasks")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick evaluates every schedule against the current second. It must never
// take the loop down: a panic from anything it touches is logged and the
// next tick proceeds as normal.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panicked", "panic", r)
		}
	}()

	now = now.In(Location).Truncate(time.Second)
	ts := now.Unix()

	schedules, err := s.store.List()
	if err != nil {
		s.logger.Error("failed to load schedules", "error", err)
		return
	}

	for _, sched := range schedules {
		if !sched.Enabled {
			continue
		}

		expr, err := Parse(sched.Cron)
		if err != nil {
			s.logger.Warn("skipping schedule with bad cron",
				"schedule", sched.ID, "cron", sched.Cron, "error", err)
			continue
		}
		if !expr.Matches(now) {
			continue
		}

		if s.taskBusy(sched.TaskID) {
			s.logger.Info("skipping fire, task still running",
				"schedule", sched.ID, "task", sched.TaskID)
			continue
		}

		fired, err := s.store.MarkFired(sched.ID, ts)
		if err != nil {
			s.logger.Error("failed to mark schedule fired",
				"schedule", sched.ID, "error", err)
			continue
		}
		if !fired {
			continue
		}

		s.setBusy(sched.TaskID, true)
		s.wg.Add(1)
		go s.runScheduled(ctx, sched, ts)
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, sched Schedule, ts int64) {
	defer s.wg.Done()
	defer s.setBusy(sched.TaskID, false)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled run panicked",
				"schedule", sched.ID, "task", sched.TaskID, "panic", r)
		}
	}()

	s.logger.Info("firing schedule", "schedule", sched.ID, "task", sched.TaskID)

	results, err := s.exec.Execute(ctx, sched.TaskID, sched.Params)
	ok := err == nil

	output := task.SummarizeResults(results)
	if err != nil && len(results) == 0 {
		output = err.Error()
	}

	if err := s.store.AppendRun(sched.ID, RunRecord{TS: ts, OK: ok, Output: output}); err != nil {
		s.logger.Error("failed to record run history",
			"schedule", sched.ID, "error", err)
	}

	if ok {
		s.logger.Info("scheduled run completed", "schedule", sched.ID)
	} else {
		s.logger.Warn("scheduled run failed", "schedule", sched.ID, "error", err)
	}
}

func (s *Scheduler) taskBusy(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[taskID]
}

func (s *Scheduler) setBusy(taskID string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if busy {
		s.inFlight[taskID] = true
	} else {
		delete(s.inFlight, taskID)
	}
}
