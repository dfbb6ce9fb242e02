package task

import (
	"context"
	"fmt"
)

// Executor loads tasks by ID and runs them. It is the entry point shared
// by the API's run endpoint and the scheduler.
type Executor struct {
	repo   Repository
	runner *Runner
}

// NewExecutor creates an executor over the given repository and runner.
func NewExecutor(repo Repository, runner *Runner) (*Executor, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Executor{repo: repo, runner: runner}, nil
}

// Execute runs the task with the given ID. Results carry per-step
// outcomes; err is non-nil when the task is missing or the run halted on
// a failed step.
func (e *Executor) Execute(ctx context.Context, taskID string, params map[string]string) ([]StepResult, error) {
	t, err := e.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return e.runner.Run(ctx, t, params)
}
