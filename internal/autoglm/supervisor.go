package autoglm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// ReadyMarker is the line the engine prints when it is idle and
	// waiting for a task. Pollers watch the log tail for it.
	ReadyMarker = "Enter your task:"

	// DefaultTailBytes is the log window returned when the caller does
	// not size the tail explicitly.
	DefaultTailBytes = 32000

	// pidFileName and logFileName live under the state directory.
	pidFileName = "autoglm.pid"
	logFileName = "autoglm.log"

	// filePermissions restricts state files to the service user.
	filePermissions = 0600

	// defaultGracefulTimeout is how long Stop waits after SIGTERM before
	// escalating to SIGKILL.
	defaultGracefulTimeout = 6 * time.Second

	// stopPollInterval is how often Stop re-checks process liveness while
	// waiting for a graceful exit.
	stopPollInterval = 200 * time.Millisecond
)

// apiKeyPlaceholders are values that look configured but aren't.
var apiKeyPlaceholders = map[string]bool{
	"":               true,
	"sk-your-apikey": true,
	"EMPTY":          true,
}

// Logger is the minimal logging interface the supervisor needs.
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

// DeviceResolver picks the device serial the engine should drive.
// *adb.Client satisfies this.
type DeviceResolver interface {
	ResolveSerial(ctx context.Context, configured string) (string, error)
}

// Config contains supervisor configuration options.
type Config struct {
	// Dir is the engine's working directory (where its script lives).
	Dir string

	// StateDir holds the pid file and the shared log file.
	StateDir string

	// Binary and Script form the engine command line, e.g. python main.py.
	Binary string
	Script string

	// Engine parameters passed as flags on start.
	BaseURL  string
	Model    string
	APIKey   string
	DeviceID string
	MaxSteps int
	Lang     string

	// GracefulTimeout is how long Stop waits before SIGKILL.
	GracefulTimeout time.Duration

	// Devices resolves the target device when no DeviceID is configured.
	Devices DeviceResolver

	// Logger receives lifecycle events. Optional.
	Logger Logger
}

// StartOptions override per-start engine parameters. Zero values fall back
// to the configured defaults.
type StartOptions struct {
	DeviceID string
	MaxSteps int
	Lang     string
}

// Status is a point-in-time view of the engine process.
type Status struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	LogSize int64  `json:"log_size"`
	LogPath string `json:"log_path"`
	Dir     string `json:"working_directory"`
	Device  string `json:"device,omitempty"`
}

// Supervisor manages the lifecycle of the external engine process.
//
// It owns the pid file and the shared log file under the state directory.
// The pid file survives service restarts, so the supervisor can observe
// (and stop) an engine it did not spawn; it only holds a stdin handle for
// processes it started itself.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	device string
}

// NewSupervisor creates a supervisor from the given configuration.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("engine directory is required")
	}
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if cfg.Binary == "" {
		cfg.Binary = "python"
	}
	if cfg.Script == "" {
		cfg.Script = "main.py"
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}

	if err := os.MkdirAll(cfg.StateDir, 0750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	return &Supervisor{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

func (s *Supervisor) pidPath() string { return filepath.Join(s.cfg.StateDir, pidFileName) }

// LogPath returns the shared engine log file path.
func (s *Supervisor) LogPath() string { return filepath.Join(s.cfg.StateDir, logFileName) }

// Status reports whether the engine is alive. A pid file pointing at a
// dead process is removed on the way through.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	pid := s.reconcile()
	size, _ := s.logSize()

	return Status{
		Running: pid > 0,
		PID:     pid,
		LogSize: size,
		LogPath: s.LogPath(),
		Dir:     s.cfg.Dir,
		Device:  s.device,
	}
}

// Start launches the engine process. It refuses to start a second instance
// and requires a real API key, since the engine exits immediately on a
// placeholder and the failure is clearer raised here.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pid := s.reconcile(); pid > 0 {
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	}

	if apiKeyPlaceholders[strings.TrimSpace(s.cfg.APIKey)] {
		return ErrAPIKeyMissing
	}

	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = s.cfg.DeviceID
	}
	if s.cfg.Devices != nil {
		serial, err := s.cfg.Devices.ResolveSerial(ctx, deviceID)
		if err != nil {
			return fmt.Errorf("resolving device: %w", err)
		}
		deviceID = serial
	}

	args := []string{
		s.cfg.Script,
		"--base-url", s.cfg.BaseURL,
		"--model", s.cfg.Model,
		"--apikey", s.cfg.APIKey,
	}
	if deviceID != "" {
		args = append(args, "--device-id", deviceID)
	}
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = s.cfg.MaxSteps
	}
	if maxSteps > 0 {
		args = append(args, "--max-steps", strconv.Itoa(maxSteps))
	}
	lang := opts.Lang
	if lang == "" {
		lang = s.cfg.Lang
	}
	if lang != "" {
		args = append(args, "--lang", lang)
	}

	logFile, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return fmt.Errorf("opening engine log: %w", err)
	}

	marker := fmt.Sprintf("=== engine start %s device=%s ===\n",
		time.Now().UTC().Format(time.RFC3339), deviceID)
	if _, err := logFile.WriteString(marker); err != nil {
		logFile.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("writing start marker: %w", err)
	}

	cmd := exec.Command(s.cfg.Binary, args...)
	cmd.Dir = s.cfg.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("opening engine stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("starting engine: %w", err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(s.pidPath(), []byte(strconv.Itoa(pid)), filePermissions); err != nil {
		s.logger.Warn("failed to write pid file", "error", err, "pid", pid)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.device = deviceID

	// Reap the child when it exits so a crashed engine doesn't linger as
	// a zombie. State cleanup happens lazily in reconcile.
	go func() {
		_ = cmd.Wait()             //nolint:errcheck // Exit status lands in the log
		logFile.Close()            //nolint:errcheck // Reaper owns the handle
		s.logger.Info("engine process exited", "pid", pid)
	}()

	s.logger.Info("engine started",
		"pid", pid,
		"device", deviceID,
		"model", s.cfg.Model,
	)
	return nil
}

// Stop terminates the engine: SIGTERM, a bounded wait for exit, then
// SIGKILL. State files and handles are cleaned up whether or not the
// process cooperates.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pid := s.reconcile()
	if pid <= 0 {
		s.cleanup()
		return ErrNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		s.cleanup()
		return fmt.Errorf("finding engine process %d: %w", pid, err)
	}

	s.logger.Info("stopping engine", "pid", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("SIGTERM failed", "error", err, "pid", pid)
	}

	deadline := time.Now().Add(s.cfg.GracefulTimeout)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			s.cleanup()
			s.logger.Info("engine stopped gracefully", "pid", pid)
			return nil
		}
		select {
		case <-ctx.Done():
			s.cleanup()
			return ctx.Err()
		case <-time.After(stopPollInterval):
		}
	}

	s.logger.Warn("engine did not exit, sending SIGKILL", "pid", pid)
	if err := proc.Signal(syscall.SIGKILL); err != nil {
		s.logger.Warn("SIGKILL failed", "error", err, "pid", pid)
	}
	s.cleanup()
	return nil
}

// TailLog reads up to maxBytes from the engine log starting at offset and
// returns the chunk plus the offset just past it, which callers use as the
// next offset; a backlog larger than one window is paged out across calls
// without gaps. An offset outside the file is clamped to a window at the
// end, so a truncated or rotated log never wedges a poller.
func (s *Supervisor) TailLog(offset, maxBytes int64) (string, int64, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultTailBytes
	}

	f, err := os.Open(s.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("opening engine log: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only handle

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("sizing engine log: %w", err)
	}
	size := info.Size()

	if offset < 0 || offset > size {
		offset = size - maxBytes
		if offset < 0 {
			offset = 0
		}
	}

	length := size - offset
	if length > maxBytes {
		length = maxBytes
	}
	if length <= 0 {
		return "", offset, nil
	}

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return "", offset, fmt.Errorf("reading engine log: %w", err)
	}
	return string(buf), offset + int64(len(buf)), nil
}

// LogSize returns the current size of the engine log.
func (s *Supervisor) LogSize() (int64, error) {
	return s.logSize()
}

// SendInput writes one line to the engine's stdin. It fails with
// ErrHandleUnavailable when the engine is alive but was started by a
// previous service instance, since that stdin pipe is gone for good.
func (s *Supervisor) SendInput(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pid := s.reconcile()
	if pid <= 0 {
		return ErrNotRunning
	}
	if s.stdin == nil {
		return ErrHandleUnavailable
	}

	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrHandleUnavailable, err)
	}
	return nil
}

// AppendLine appends an audit line to the shared engine log, so step
// execution and engine output interleave in one place.
func (s *Supervisor) AppendLine(line string) error {
	f, err := os.OpenFile(s.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return fmt.Errorf("opening engine log: %w", err)
	}
	defer f.Close() //nolint:errcheck // Append-only handle

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("appending to engine log: %w", err)
	}
	return nil
}

// reconcile returns the live engine pid, or 0. It must be called with the
// lock held. A pid file naming a dead process is removed and any stale
// in-memory handles are dropped.
func (s *Supervisor) reconcile() int {
	data, err := os.ReadFile(s.pidPath())
	if err != nil {
		s.dropHandles()
		return 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || !pidAlive(pid) {
		s.cleanup()
		return 0
	}

	// A handle from a previous spawn is useless once the pid changed.
	if s.cmd != nil && s.cmd.Process != nil && s.cmd.Process.Pid != pid {
		s.dropHandles()
	}
	return pid
}

func (s *Supervisor) cleanup() {
	if err := os.Remove(s.pidPath()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove pid file", "error", err)
	}
	s.dropHandles()
}

func (s *Supervisor) dropHandles() {
	if s.stdin != nil {
		s.stdin.Close() //nolint:errcheck // Handle already dead
	}
	s.cmd = nil
	s.stdin = nil
	s.device = ""
}

func (s *Supervisor) logSize() (int64, error) {
	info, err := os.Stat(s.LogPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// pidAlive checks liveness with signal 0, which probes the process table
// without delivering anything.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
