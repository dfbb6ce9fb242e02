package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/autoglm/autoglm-core/internal/task"
)

// fakeExecutor counts executions and optionally blocks until released.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	results []task.StepResult
	err     error
	block   chan struct{}
}

func (f *fakeExecutor) Execute(_ context.Context, taskID string, _ map[string]string) ([]task.StepResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, taskID)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	return f.results, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestScheduler(t *testing.T, exec Executor) (*Scheduler, *Store) {
	t.Helper()

	store := newTestStore(t)
	s, err := NewScheduler(Config{Store: store, Executor: exec})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestTick_FiresMatchingSchedule(t *testing.T) {
	exec := &fakeExecutor{
		results: []task.StepResult{{Type: task.StepNote, OK: true, Output: "done"}},
	}
	s, store := newTestScheduler(t, exec)

	sched := &Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: true}
	if err := store.Upsert(sched); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	now := time.Date(2026, 8, 29, 10, 0, 0, 0, Location)
	s.tick(context.Background(), now)

	waitFor(t, func() bool { return exec.callCount() == 1 })
	waitFor(t, func() bool {
		got, err := store.Get(sched.ID)
		return err == nil && len(got.History) == 1
	})

	got, err := store.Get(sched.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.History[0].OK {
		t.Error("run record should be OK")
	}
	if got.History[0].Output != "note: done" {
		t.Errorf("run output = %q, want %q", got.History[0].Output, "note: done")
	}
	if got.LastRunTS != now.Unix() {
		t.Errorf("LastRunTS = %d, want %d", got.LastRunTS, now.Unix())
	}
}

func TestTick_SameSecondFiresOnce(t *testing.T) {
	exec := &fakeExecutor{}
	s, store := newTestScheduler(t, exec)

	if err := store.Upsert(&Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: true}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	now := time.Date(2026, 8, 29, 10, 0, 0, 0, Location)
	s.tick(context.Background(), now)
	waitFor(t, func() bool { return exec.callCount() == 1 })

	// A second tick landing in the same second must not re-fire.
	s.tick(context.Background(), now)
	time.Sleep(50 * time.Millisecond)
	if n := exec.callCount(); n != 1 {
		t.Errorf("executions = %d, want 1", n)
	}
}

func TestTick_SkipsDisabled(t *testing.T) {
	exec := &fakeExecutor{}
	s, store := newTestScheduler(t, exec)

	if err := store.Upsert(&Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: false}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	s.tick(context.Background(), time.Now())
	time.Sleep(50 * time.Millisecond)
	if n := exec.callCount(); n != 0 {
		t.Errorf("executions = %d, want 0 for disabled schedule", n)
	}
}

func TestTick_SkipsWhileTaskRunning(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{})}
	s, store := newTestScheduler(t, exec)

	if err := store.Upsert(&Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: true}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	now := time.Date(2026, 8, 29, 10, 0, 0, 0, Location)
	s.tick(context.Background(), now)
	waitFor(t, func() bool { return exec.callCount() == 1 })

	// Next second arrives while the first run is still going.
	s.tick(context.Background(), now.Add(time.Second))
	time.Sleep(50 * time.Millisecond)
	if n := exec.callCount(); n != 1 {
		t.Errorf("executions = %d, want 1 while task is mid-run", n)
	}

	close(exec.block)
	waitFor(t, func() bool { return !s.taskBusy("task-1") })

	// With the run finished, the next second fires again.
	s.tick(context.Background(), now.Add(2*time.Second))
	waitFor(t, func() bool { return exec.callCount() == 2 })
}

func TestTick_RecordsFailedRun(t *testing.T) {
	exec := &fakeExecutor{
		results: []task.StepResult{{Type: task.StepADBTap, OK: false, Output: "tap refused"}},
		err:     errors.New("step failed"),
	}
	s, store := newTestScheduler(t, exec)

	sched := &Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: true}
	if err := store.Upsert(sched); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	s.tick(context.Background(), time.Date(2026, 8, 29, 10, 0, 0, 0, Location))
	waitFor(t, func() bool {
		got, err := store.Get(sched.ID)
		return err == nil && len(got.History) == 1
	})

	got, _ := store.Get(sched.ID)
	if got.History[0].OK {
		t.Error("run record should not be OK")
	}
	if got.History[0].Output != "adb_tap: tap refused" {
		t.Errorf("run output = %q", got.History[0].Output)
	}
}

func TestTick_BadCronDoesNotKillLoop(t *testing.T) {
	exec := &fakeExecutor{}
	s, store := newTestScheduler(t, exec)

	// Write a schedule with a cron the store-level validation would
	// reject, the way a hand-edited file could.
	sched := &Schedule{TaskID: "task-1", Cron: "* * * * * *", Enabled: true}
	if err := store.Upsert(sched); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	sched.Cron = "broken"
	schedules, _ := store.load()
	schedules[0].Cron = "broken"
	if err := store.save(schedules); err != nil {
		t.Fatal(err)
	}

	s.tick(context.Background(), time.Now()) // must not panic
	if n := exec.callCount(); n != 0 {
		t.Errorf("executions = %d, want 0", n)
	}
}
