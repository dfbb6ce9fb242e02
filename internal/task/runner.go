package task

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autoglm/autoglm-core/internal/autoglm"
)

const (
	// defaultSleep is used when a sleep step carries no duration.
	defaultSleep = 500 * time.Millisecond

	// readyTimeout bounds the wait for a freshly started engine to reach
	// its idle prompt.
	readyTimeout = 120 * time.Second

	// defaultStepPromptTimeout bounds an autoglm_prompt step from send
	// to the engine returning idle.
	defaultStepPromptTimeout = 120 * time.Second

	// defaultTaskPromptTimeout bounds a prompt-driven task. These carry a
	// whole automation, not one action, so they get far more slack.
	defaultTaskPromptTimeout = 600 * time.Second

	// readyPollInterval and promptPollInterval pace the log tail polls.
	readyPollInterval  = 150 * time.Millisecond
	promptPollInterval = 250 * time.Millisecond

	// tracebackMarker in engine output means the engine itself crashed;
	// waiting longer cannot help.
	tracebackMarker = "Traceback (most recent call last)"
)

// DeviceController is the slice of the adb client the runner needs.
type DeviceController interface {
	ResolveSerial(ctx context.Context, configured string) (string, error)
	Shell(ctx context.Context, serial, command string) (string, error)
	InputText(ctx context.Context, serial, text string) (string, error)
	Tap(ctx context.Context, serial string, x, y int) (string, error)
	Swipe(ctx context.Context, serial string, x1, y1, x2, y2 int, duration time.Duration) (string, error)
	KeyEvent(ctx context.Context, serial, key string) (string, error)
	StartApp(ctx context.Context, serial, pkg, activity string) (string, error)
}

// Engine is the slice of the supervisor the runner needs.
type Engine interface {
	Status() autoglm.Status
	Start(ctx context.Context, opts autoglm.StartOptions) error
	Stop(ctx context.Context) error
	LogSize() (int64, error)
	TailLog(offset, maxBytes int64) (string, int64, error)
	SendInput(line string) error
	AppendLine(line string) error
}

// Logger is the minimal logging interface the runner needs.
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

// RunnerConfig contains runner dependencies and defaults.
type RunnerConfig struct {
	Devices DeviceController
	Engine  Engine

	// DeviceID is the configured device serial, empty for auto-resolve.
	DeviceID string

	// Logger receives run progress. Optional.
	Logger Logger
}

// Runner executes task steps in order, stopping at the first failure.
//
// Partial results are always returned: a failed run reports every step
// that ran, including the one that failed, so callers can show exactly
// where a task broke.
type Runner struct {
	devices  DeviceController
	engine   Engine
	deviceID string
	logger   Logger
}

// NewRunner creates a runner from the given configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Devices == nil {
		return nil, fmt.Errorf("device controller is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Runner{
		devices:  cfg.Devices,
		engine:   cfg.Engine,
		deviceID: cfg.DeviceID,
		logger:   cfg.Logger,
	}, nil
}

// Run executes the task's steps with {key} placeholders rendered from
// params. It returns the results of every step that ran; err is
// ErrStepFailed (wrapped) when a step failed and the run halted early.
//
// A task with a non-empty Prompt bypasses the step list: the prompt goes
// to the engine as one action and the run yields a single result.
func (r *Runner) Run(ctx context.Context, t *Task, params map[string]string) ([]StepResult, error) {
	if t.Prompt != "" {
		return r.runTaskPrompt(ctx, t, params)
	}

	r.logger.Info("running task", "task", t.Name, "steps", len(t.Steps))
	r.audit(fmt.Sprintf("[task %s] started (%d steps)", t.Name, len(t.Steps)))

	// Device resolution is lazy: a task of notes and prompts shouldn't
	// fail because no device is plugged in.
	serial := ""

	results := make([]StepResult, 0, len(t.Steps))
	for i, raw := range t.Steps {
		step := renderStep(raw, params)

		output, err := r.executeStep(ctx, step, &serial)
		result := StepResult{Type: step.Type, OK: err == nil, Output: output}
		if err != nil {
			result.Output = err.Error()
		}
		results = append(results, result)

		if err != nil {
			r.audit(fmt.Sprintf("[task %s] step %d %s: failed: %s",
				t.Name, i+1, step.Type, firstLine(result.Output)))
			r.logger.Warn("task halted on failed step",
				"task", t.Name, "step", i+1, "type", step.Type, "error", err)
			return results, fmt.Errorf("%w: step %d (%s): %v", ErrStepFailed, i+1, step.Type, err)
		}
		r.audit(fmt.Sprintf("[task %s] step %d %s: ok", t.Name, i+1, step.Type))
	}

	r.audit(fmt.Sprintf("[task %s] completed", t.Name))
	r.logger.Info("task completed", "task", t.Name)
	return results, nil
}

func (r *Runner) executeStep(ctx context.Context, step Step, serial *string) (string, error) {
	if err := step.Validate(); err != nil {
		return "", err
	}

	switch step.Type {
	case StepNote:
		return step.Note, nil

	case StepSleep:
		return r.sleep(ctx, step.DurationMS)

	case StepAppRetired:
		return "", fmt.Errorf("step type %q is retired, use %q", StepAppRetired, StepAppLaunch)

	case StepPrompt:
		return r.runPrompt(ctx, step.Prompt, stepPromptTimeout(step))
	}

	// Everything else touches a device. A step's own device wins over
	// the run default, which is resolved once and reused.
	target := step.DeviceID
	if target == "" {
		if *serial == "" {
			resolved, err := r.devices.ResolveSerial(ctx, r.deviceID)
			if err != nil {
				return "", err
			}
			*serial = resolved
		}
		target = *serial
	}

	switch step.Type {
	case StepADBShell:
		return r.devices.Shell(ctx, target, step.Command)
	case StepADBInput:
		return r.devices.InputText(ctx, target, step.Text)
	case StepADBTap:
		return r.devices.Tap(ctx, target, step.X, step.Y)
	case StepADBSwipe:
		duration := time.Duration(step.DurationMS) * time.Millisecond
		return r.devices.Swipe(ctx, target, step.X, step.Y, step.X2, step.Y2, duration)
	case StepADBKeyEvent:
		return r.devices.KeyEvent(ctx, target, step.Key)
	case StepAppLaunch:
		return r.devices.StartApp(ctx, target, step.Package, step.Activity)
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidStep, step.Type)
	}
}

func (r *Runner) sleep(ctx context.Context, ms int) (string, error) {
	d := defaultSleep
	if ms > 0 {
		d = time.Duration(ms) * time.Millisecond
	} else if ms < 0 {
		d = 0
	}

	select {
	case <-time.After(d):
		return fmt.Sprintf("slept %s", d), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// runTaskPrompt executes a prompt-driven task: one engine round-trip,
// one result. params render into the prompt, and a timeout_seconds param
// overrides the default deadline.
func (r *Runner) runTaskPrompt(ctx context.Context, t *Task, params map[string]string) ([]StepResult, error) {
	r.logger.Info("running prompt task", "task", t.Name)
	r.audit(fmt.Sprintf("[task %s] started (prompt)", t.Name))

	output, err := r.runPrompt(ctx, Render(t.Prompt, params), taskPromptTimeout(params))
	result := StepResult{Type: StepPrompt, OK: err == nil, Output: output}
	if err != nil {
		if result.Output == "" {
			result.Output = err.Error()
		}
		r.audit(fmt.Sprintf("[task %s] prompt failed: %s", t.Name, firstLine(err.Error())))
		r.logger.Warn("prompt task failed", "task", t.Name, "error", err)
		return []StepResult{result}, fmt.Errorf("%w: prompt: %v", ErrStepFailed, err)
	}

	r.audit(fmt.Sprintf("[task %s] completed", t.Name))
	r.logger.Info("prompt task completed", "task", t.Name)
	return []StepResult{result}, nil
}

// stepPromptTimeout returns the deadline for one autoglm_prompt step.
func stepPromptTimeout(s Step) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return defaultStepPromptTimeout
}

// taskPromptTimeout returns the deadline for a prompt-driven task. A
// timeout_seconds param overrides the default.
func taskPromptTimeout(params map[string]string) time.Duration {
	if raw, ok := params["timeout_seconds"]; ok {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultTaskPromptTimeout
}

// runPrompt sends a natural-language task to the engine and collects its
// output until the engine returns to its idle prompt.
func (r *Runner) runPrompt(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if err := r.ensureEngineReady(ctx); err != nil {
		return "", err
	}

	// Everything the engine prints after this offset belongs to this
	// prompt.
	offset, err := r.engine.LogSize()
	if err != nil {
		return "", fmt.Errorf("sizing engine log: %w", err)
	}

	if err := r.engine.SendInput(prompt); err != nil {
		if !errors.Is(err, autoglm.ErrHandleUnavailable) {
			return "", err
		}
		// The engine predates this service instance. Restart it to get a
		// writable stdin, then try once more.
		r.logger.Info("engine handle unavailable, restarting")
		if stopErr := r.engine.Stop(ctx); stopErr != nil && !errors.Is(stopErr, autoglm.ErrNotRunning) {
			return "", fmt.Errorf("restarting engine: %w", stopErr)
		}
		if err := r.ensureEngineReady(ctx); err != nil {
			return "", err
		}
		if offset, err = r.engine.LogSize(); err != nil {
			return "", fmt.Errorf("sizing engine log: %w", err)
		}
		if err := r.engine.SendInput(prompt); err != nil {
			return "", err
		}
	}

	return r.collectPromptOutput(ctx, offset, timeout)
}

// ensureEngineReady starts the engine if needed and waits for its idle
// prompt. A running engine is assumed ready; if it is mid-task the send
// queues on its stdin and the output collection sorts itself out.
func (r *Runner) ensureEngineReady(ctx context.Context) error {
	if r.engine.Status().Running {
		return nil
	}

	offset, err := r.engine.LogSize()
	if err != nil {
		return fmt.Errorf("sizing engine log: %w", err)
	}
	if err := r.engine.Start(ctx, autoglm.StartOptions{}); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	deadline := time.Now().Add(readyTimeout)
	var seen strings.Builder
	for {
		chunk, next, err := r.engine.TailLog(offset, 0)
		if err != nil {
			return fmt.Errorf("tailing engine log: %w", err)
		}
		seen.WriteString(chunk)
		offset = next

		if fatal := fatalLine(seen.String()); fatal != "" {
			return fmt.Errorf("engine failed to start: %s", fatal)
		}
		if strings.Contains(seen.String(), autoglm.ReadyMarker) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: engine not ready after %s", ErrPromptTimeout, readyTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyPollInterval):
		}
	}
}

// collectPromptOutput tails the engine log from offset until the idle
// prompt reappears, the output turns fatal, or the timeout lapses.
func (r *Runner) collectPromptOutput(ctx context.Context, offset int64, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var out strings.Builder
	for {
		chunk, next, err := r.engine.TailLog(offset, 0)
		if err != nil {
			return "", fmt.Errorf("tailing engine log: %w", err)
		}
		out.WriteString(chunk)
		offset = next

		collected := out.String()
		if fatal := fatalLine(collected); fatal != "" {
			return strings.TrimSpace(collected), fmt.Errorf("engine error: %s", fatal)
		}
		if idx := strings.Index(collected, autoglm.ReadyMarker); idx >= 0 {
			return strings.TrimSpace(collected[:idx]), nil
		}
		if time.Now().After(deadline) {
			return strings.TrimSpace(collected), fmt.Errorf("%w after %s", ErrPromptTimeout, timeout)
		}

		select {
		case <-ctx.Done():
			return strings.TrimSpace(collected), ctx.Err()
		case <-time.After(promptPollInterval):
		}
	}
}

// fatalLine returns the first line of s that indicates the engine has
// failed rather than progressed: an explicit Error: line or a Python
// traceback.
func fatalLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Error:") || strings.Contains(trimmed, tracebackMarker) {
			return trimmed
		}
	}
	return ""
}

func (r *Runner) audit(line string) {
	if err := r.engine.AppendLine(line); err != nil {
		r.logger.Warn("audit append failed", "error", err)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// SummarizeResults renders step results as the one-line-per-step text
// stored in schedule run history.
func SummarizeResults(results []StepResult) string {
	if len(results) == 0 {
		return "(no steps)"
	}
	lines := make([]string, 0, len(results))
	for _, res := range results {
		output := res.Output
		if output == "" {
			if res.OK {
				output = "ok"
			} else {
				output = "failed"
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s", res.Type, output))
	}
	return strings.Join(lines, "\n")
}
