package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/autoglm/autoglm-core/internal/autoglm"
)

// fakeDevices records device calls and fails on demand.
type fakeDevices struct {
	serial       string
	resolveErr   error
	resolveCalls int
	calls        []string
	failType     StepType
}

func (f *fakeDevices) ResolveSerial(_ context.Context, configured string) (string, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	if configured != "" {
		return configured, nil
	}
	return f.serial, nil
}

func (f *fakeDevices) record(st StepType, call string) (string, error) {
	f.calls = append(f.calls, call)
	if st == f.failType {
		return "", fmt.Errorf("%s refused", st)
	}
	return call + " done", nil
}

func (f *fakeDevices) Shell(_ context.Context, serial, command string) (string, error) {
	return f.record(StepADBShell, fmt.Sprintf("shell[%s] %s", serial, command))
}

func (f *fakeDevices) InputText(_ context.Context, serial, text string) (string, error) {
	return f.record(StepADBInput, fmt.Sprintf("input[%s] %s", serial, text))
}

func (f *fakeDevices) Tap(_ context.Context, serial string, x, y int) (string, error) {
	return f.record(StepADBTap, fmt.Sprintf("tap[%s] %d,%d", serial, x, y))
}

func (f *fakeDevices) Swipe(_ context.Context, serial string, x1, y1, x2, y2 int, d time.Duration) (string, error) {
	return f.record(StepADBSwipe, fmt.Sprintf("swipe[%s] %d,%d->%d,%d %s", serial, x1, y1, x2, y2, d))
}

func (f *fakeDevices) KeyEvent(_ context.Context, serial, key string) (string, error) {
	return f.record(StepADBKeyEvent, fmt.Sprintf("key[%s] %s", serial, key))
}

func (f *fakeDevices) StartApp(_ context.Context, serial, pkg, activity string) (string, error) {
	return f.record(StepAppLaunch, fmt.Sprintf("app[%s] %s/%s", serial, pkg, activity))
}

// fakeEngine is an in-memory engine: its log is a byte slice and
// SendInput appends a canned response.
type fakeEngine struct {
	mu                sync.Mutex
	log               []byte
	running           bool
	handleUnavailable bool
	response          string
	sends             []string
}

func (e *fakeEngine) append(s string) {
	e.log = append(e.log, s...)
}

func (e *fakeEngine) Status() autoglm.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return autoglm.Status{Running: e.running, LogSize: int64(len(e.log))}
}

func (e *fakeEngine) Start(context.Context, autoglm.StartOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
	e.append(autoglm.ReadyMarker + "\n")
	return nil
}

func (e *fakeEngine) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.handleUnavailable = false
	return nil
}

func (e *fakeEngine) LogSize() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return int64(len(e.log)), nil
}

func (e *fakeEngine) TailLog(offset, maxBytes int64) (string, int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	size := int64(len(e.log))
	if offset < 0 || offset > size {
		offset = 0
	}
	return string(e.log[offset:]), size, nil
}

func (e *fakeEngine) SendInput(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return autoglm.ErrNotRunning
	}
	if e.handleUnavailable {
		return autoglm.ErrHandleUnavailable
	}
	e.sends = append(e.sends, line)
	e.append(e.response)
	return nil
}

func (e *fakeEngine) AppendLine(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.append(line + "\n")
	return nil
}

func newTestRunner(t *testing.T, devices *fakeDevices, engine *fakeEngine) *Runner {
	t.Helper()

	r, err := NewRunner(RunnerConfig{Devices: devices, Engine: engine})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func TestRun_AllStepsSucceed(t *testing.T) {
	devices := &fakeDevices{serial: "emulator-5554"}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name: "poke-screen",
		Steps: []Step{
			{Type: StepNote, Note: "begin"},
			{Type: StepADBTap, X: 100, Y: 200},
			{Type: StepADBKeyEvent, Key: "KEYCODE_HOME"},
		},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if !res.OK {
			t.Errorf("results[%d].OK = false: %s", i, res.Output)
		}
	}
	if results[0].Output != "begin" {
		t.Errorf("note output = %q, want begin", results[0].Output)
	}

	// One resolution shared across both device steps.
	if devices.resolveCalls != 1 {
		t.Errorf("resolveCalls = %d, want 1", devices.resolveCalls)
	}
	if len(devices.calls) != 2 {
		t.Errorf("device calls = %v, want 2 entries", devices.calls)
	}
}

func TestRun_FailFastHaltsRemainingSteps(t *testing.T) {
	devices := &fakeDevices{serial: "emulator-5554", failType: StepADBKeyEvent}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name: "halts-midway",
		Steps: []Step{
			{Type: StepNote, Note: "A"},
			{Type: StepADBKeyEvent, Key: "KEYCODE_HOME"},
			{Type: StepNote, Note: "C"},
		},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want ErrStepFailed", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (third step must not run)", len(results))
	}
	if !results[0].OK {
		t.Error("results[0] should have succeeded")
	}
	if results[1].OK {
		t.Error("results[1] should have failed")
	}
}

func TestRun_NoDeviceNeededForNotes(t *testing.T) {
	devices := &fakeDevices{resolveErr: errors.New("no devices attached")}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "device-free",
		Steps: []Step{{Type: StepNote, Note: "just a note"}},
	}

	if _, err := r.Run(context.Background(), tk, nil); err != nil {
		t.Errorf("Run() error = %v, want nil for note-only task", err)
	}
}

func TestRun_RetiredAppStep(t *testing.T) {
	devices := &fakeDevices{serial: "emulator-5554"}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "legacy",
		Steps: []Step{{Type: StepAppRetired, Package: "com.example"}},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want ErrStepFailed", err)
	}
	if len(results) != 1 || results[0].OK {
		t.Fatal("retired step must fail")
	}
	if !strings.Contains(results[0].Output, "app_launch") {
		t.Errorf("failure should point at the replacement, got %q", results[0].Output)
	}
}

func TestRun_RendersParams(t *testing.T) {
	devices := &fakeDevices{serial: "emulator-5554"}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "greeter",
		Steps: []Step{{Type: StepADBInput, Text: "hello {name}"}},
	}

	if _, err := r.Run(context.Background(), tk, map[string]string{"name": "world"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := "input[emulator-5554] hello world"; devices.calls[0] != want {
		t.Errorf("device saw %q, want %q", devices.calls[0], want)
	}

	// Missing key: the literal text goes through rather than a fragment.
	devices.calls = nil
	if _, err := r.Run(context.Background(), tk, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if want := "input[emulator-5554] hello {name}"; devices.calls[0] != want {
		t.Errorf("device saw %q, want %q", devices.calls[0], want)
	}
}

func TestRun_StepDeviceOverride(t *testing.T) {
	devices := &fakeDevices{serial: "emulator-5554"}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name: "two-phones",
		Steps: []Step{
			{Type: StepADBTap, X: 1, Y: 2},
			{Type: StepADBTap, DeviceID: "tablet-9", X: 3, Y: 4},
			{Type: StepADBKeyEvent, DeviceID: "{dev}", Key: "KEYCODE_BACK"},
		},
	}

	results, err := r.Run(context.Background(), tk, map[string]string{"dev": "phone-7"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, res := range results {
		if !res.OK {
			t.Errorf("results[%d].OK = false: %s", i, res.Output)
		}
	}

	want := []string{
		"tap[emulator-5554] 1,2",
		"tap[tablet-9] 3,4",
		"key[phone-7] KEYCODE_BACK",
	}
	for i, call := range want {
		if devices.calls[i] != call {
			t.Errorf("calls[%d] = %q, want %q", i, devices.calls[i], call)
		}
	}

	// Only the step without an override needed the default resolved.
	if devices.resolveCalls != 1 {
		t.Errorf("resolveCalls = %d, want 1", devices.resolveCalls)
	}
}

func TestRun_StepDeviceOverrideSkipsResolution(t *testing.T) {
	devices := &fakeDevices{resolveErr: errors.New("no devices attached")}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "pinned",
		Steps: []Step{{Type: StepADBShell, DeviceID: "tablet-9", Command: "echo hi"}},
	}

	if _, err := r.Run(context.Background(), tk, nil); err != nil {
		t.Fatalf("Run() error = %v, want nil when every step names its device", err)
	}
	if devices.resolveCalls != 0 {
		t.Errorf("resolveCalls = %d, want 0", devices.resolveCalls)
	}
}

func TestRun_PromptTask(t *testing.T) {
	devices := &fakeDevices{resolveErr: errors.New("no devices attached")}
	engine := &fakeEngine{
		running:  true,
		response: "booked the table\n" + autoglm.ReadyMarker + "\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:   "dinner",
		Prompt: "book a table for {count}",
		Steps: []Step{
			// Present but dead: a prompt task never runs its steps.
			{Type: StepADBTap, X: 1, Y: 2},
		},
	}

	results, err := r.Run(context.Background(), tk, map[string]string{"count": "4"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Type != StepPrompt || !results[0].OK {
		t.Fatalf("result = %+v, want a successful autoglm_prompt", results[0])
	}
	if !strings.Contains(results[0].Output, "booked the table") {
		t.Errorf("output = %q, want the engine lines", results[0].Output)
	}
	if len(engine.sends) != 1 || engine.sends[0] != "book a table for 4" {
		t.Errorf("engine sends = %v, want the rendered prompt", engine.sends)
	}
	if len(devices.calls) != 0 {
		t.Errorf("device calls = %v, want none", devices.calls)
	}
}

func TestRun_PromptTaskFailure(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:  true,
		response: "Error: engine refused\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{Name: "doomed-dinner", Prompt: "book a table"}

	results, err := r.Run(context.Background(), tk, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want ErrStepFailed", err)
	}
	if len(results) != 1 || results[0].OK {
		t.Fatal("failed prompt task must yield one failed result")
	}
}

func TestPromptTimeouts(t *testing.T) {
	if got := stepPromptTimeout(Step{Type: StepPrompt, Prompt: "x"}); got != 120*time.Second {
		t.Errorf("step default = %s, want 120s", got)
	}
	if got := stepPromptTimeout(Step{Type: StepPrompt, Prompt: "x", TimeoutSeconds: 45}); got != 45*time.Second {
		t.Errorf("step override = %s, want 45s", got)
	}

	if got := taskPromptTimeout(nil); got != 600*time.Second {
		t.Errorf("task default = %s, want 600s", got)
	}
	if got := taskPromptTimeout(map[string]string{"timeout_seconds": "90"}); got != 90*time.Second {
		t.Errorf("task override = %s, want 90s", got)
	}
	if got := taskPromptTimeout(map[string]string{"timeout_seconds": "soon"}); got != 600*time.Second {
		t.Errorf("bad override = %s, want the 600s default", got)
	}
}

func TestRunPrompt_CollectsOutputUntilReady(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:  true,
		response: "opening settings\ntoggled wifi\n" + autoglm.ReadyMarker + "\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "wifi",
		Steps: []Step{{Type: StepPrompt, Prompt: "toggle wifi"}},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(engine.sends) != 1 || engine.sends[0] != "toggle wifi" {
		t.Fatalf("engine sends = %v, want [toggle wifi]", engine.sends)
	}
	out := results[0].Output
	if !strings.Contains(out, "opening settings") || !strings.Contains(out, "toggled wifi") {
		t.Errorf("prompt output = %q, missing engine lines", out)
	}
	if strings.Contains(out, autoglm.ReadyMarker) {
		t.Errorf("prompt output %q must not include the ready marker", out)
	}
}

func TestRunPrompt_StartsStoppedEngine(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:  false,
		response: "done\n" + autoglm.ReadyMarker + "\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "cold-start",
		Steps: []Step{{Type: StepPrompt, Prompt: "do the thing"}},
	}

	if _, err := r.Run(context.Background(), tk, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !engine.Status().Running {
		t.Error("engine should have been started")
	}
}

func TestRunPrompt_FatalEngineOutput(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:  true,
		response: "Error: model rejected the request\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "doomed",
		Steps: []Step{{Type: StepPrompt, Prompt: "impossible"}},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want ErrStepFailed", err)
	}
	if !strings.Contains(results[0].Output, "model rejected") {
		t.Errorf("failure output = %q, want the engine error", results[0].Output)
	}
}

func TestRunPrompt_HandleUnavailableRestartsOnce(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:           true,
		handleUnavailable: true,
		response:          "recovered\n" + autoglm.ReadyMarker + "\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "recovery",
		Steps: []Step{{Type: StepPrompt, Prompt: "try again"}},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(engine.sends) != 1 {
		t.Fatalf("engine sends = %v, want one successful send after restart", engine.sends)
	}
	if !strings.Contains(results[0].Output, "recovered") {
		t.Errorf("output = %q, want recovered", results[0].Output)
	}
}

func TestRunPrompt_Timeout(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{
		running:  true,
		response: "still working\n",
	}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "slow",
		Steps: []Step{{Type: StepPrompt, Prompt: "never finishes", TimeoutSeconds: 1}},
	}

	results, err := r.Run(context.Background(), tk, nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Fatalf("Run() error = %v, want ErrStepFailed", err)
	}
	if results[0].OK {
		t.Error("timed-out prompt must fail")
	}
}

func TestRun_SleepClamp(t *testing.T) {
	devices := &fakeDevices{}
	engine := &fakeEngine{}
	r := newTestRunner(t, devices, engine)

	tk := &Task{
		Name:  "napper",
		Steps: []Step{{Type: StepSleep, DurationMS: -100}},
	}

	start := time.Now()
	if _, err := r.Run(context.Background(), tk, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("negative sleep took %s, want ~0", elapsed)
	}
}

func TestSummarizeResults(t *testing.T) {
	results := []StepResult{
		{Type: StepNote, OK: true, Output: "begin"},
		{Type: StepADBTap, OK: true, Output: ""},
		{Type: StepADBKeyEvent, OK: false, Output: "key refused"},
	}

	got := SummarizeResults(results)
	want := "note: begin\nadb_tap: ok\nadb_keyevent: key refused"
	if got != want {
		t.Errorf("SummarizeResults() = %q, want %q", got, want)
	}

	if got := SummarizeResults(nil); got != "(no steps)" {
		t.Errorf("SummarizeResults(nil) = %q", got)
	}
}
