package task

import "errors"

var (
	// ErrTaskNotFound indicates no task exists with the given ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTask indicates a task failed validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrInvalidStep indicates a step failed validation.
	ErrInvalidStep = errors.New("invalid step")

	// ErrStepFailed indicates a run halted because a step failed.
	ErrStepFailed = errors.New("step failed")

	// ErrPromptTimeout indicates the engine did not return to its idle
	// prompt within the allowed time.
	ErrPromptTimeout = errors.New("timed out waiting for engine prompt")
)
