package task

import (
	"fmt"
	"time"
)

// StepType identifies what a step does. The set is closed: a task whose
// steps carry an unknown type fails validation rather than being skipped.
type StepType string

const (
	// StepNote writes a line into the run output without touching anything.
	StepNote StepType = "note"

	// StepSleep pauses between steps.
	StepSleep StepType = "sleep"

	// StepADBShell runs a raw shell command on the device.
	StepADBShell StepType = "adb_shell"

	// StepADBInput types text on the device.
	StepADBInput StepType = "adb_input"

	// StepADBTap taps a screen coordinate.
	StepADBTap StepType = "adb_tap"

	// StepADBSwipe swipes between two coordinates.
	StepADBSwipe StepType = "adb_swipe"

	// StepADBKeyEvent sends a key event.
	StepADBKeyEvent StepType = "adb_keyevent"

	// StepAppLaunch starts an application by package (and optional
	// activity).
	StepAppLaunch StepType = "app_launch"

	// StepPrompt drives the engine with a natural-language task and waits
	// for it to come back idle.
	StepPrompt StepType = "autoglm_prompt"

	// StepAppRetired is the old name for app_launch. It is kept in the
	// enum so stored tasks still parse, but executing it always fails
	// with a pointer at the replacement.
	StepAppRetired StepType = "app"
)

// Valid reports whether t is a known step type.
func (t StepType) Valid() bool {
	switch t {
	case StepNote, StepSleep, StepADBShell, StepADBInput, StepADBTap,
		StepADBSwipe, StepADBKeyEvent, StepAppLaunch, StepPrompt,
		StepAppRetired:
		return true
	}
	return false
}

// Step is one unit of work in a task. Fields beyond Type are
// type-specific; irrelevant ones are ignored.
type Step struct {
	Type StepType `json:"type"`

	// DeviceID overrides the run's device for this step. Rendered
	// through templating like the other fields; empty means the run
	// default.
	DeviceID string `json:"device_id,omitempty"`

	// StepNote
	Note string `json:"note,omitempty"`

	// StepSleep, StepADBSwipe
	DurationMS int `json:"duration_ms,omitempty"`

	// StepADBShell
	Command string `json:"command,omitempty"`

	// StepADBInput
	Text string `json:"text,omitempty"`

	// StepADBTap, StepADBSwipe
	X  int `json:"x,omitempty"`
	Y  int `json:"y,omitempty"`
	X2 int `json:"x2,omitempty"`
	Y2 int `json:"y2,omitempty"`

	// StepADBKeyEvent
	Key string `json:"key,omitempty"`

	// StepAppLaunch
	Package  string `json:"package,omitempty"`
	Activity string `json:"activity,omitempty"`

	// StepPrompt
	Prompt         string `json:"prompt,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Validate checks that the step is executable: a known type with the
// fields that type requires.
func (s Step) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStep, s.Type)
	}

	switch s.Type {
	case StepADBShell:
		if s.Command == "" {
			return fmt.Errorf("%w: adb_shell requires command", ErrInvalidStep)
		}
	case StepADBInput:
		if s.Text == "" {
			return fmt.Errorf("%w: adb_input requires text", ErrInvalidStep)
		}
	case StepADBKeyEvent:
		if s.Key == "" {
			return fmt.Errorf("%w: adb_keyevent requires key", ErrInvalidStep)
		}
	case StepAppLaunch:
		if s.Package == "" {
			return fmt.Errorf("%w: app_launch requires package", ErrInvalidStep)
		}
	case StepPrompt:
		if s.Prompt == "" {
			return fmt.Errorf("%w: autoglm_prompt requires prompt", ErrInvalidStep)
		}
	}
	return nil
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Type   StepType `json:"type"`
	OK     bool     `json:"ok"`
	Output string   `json:"output"`
}

// Task is a named step sequence. Tasks are stored in SQLite and executed
// by the Runner, either on demand or from the scheduler.
//
// A task with a non-empty Prompt is prompt-driven: the runner sends the
// prompt to the engine as a single action and ignores Steps entirely.
type Task struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the task and all its steps.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	for i, step := range t.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}
