package adb

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds a single adb invocation when the caller's
	// context carries no deadline of its own.
	defaultTimeout = 20 * time.Second

	// defaultSwipeDuration is used when a swipe step omits a duration.
	defaultSwipeDuration = 300 * time.Millisecond
)

// keyEventPattern matches the two accepted key event forms: a numeric
// keycode or a symbolic KEYCODE_* name. Anything else is rejected before
// it reaches a shell.
var keyEventPattern = regexp.MustCompile(`^(\d+|KEYCODE_[A-Z0-9_]+)$`)

// componentPattern restricts package and activity names to the characters
// Android itself allows, which keeps them safe to splice into am/monkey
// invocations.
var componentPattern = regexp.MustCompile(`^[A-Za-z0-9._$]+$`)

// Logger is the minimal logging interface the client needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Device is one entry from the device list.
type Device struct {
	Serial  string `json:"serial"`
	State   string `json:"state"`
	Model   string `json:"model,omitempty"`
	Product string `json:"product,omitempty"`
}

// Online reports whether the device is fully connected and authorized.
func (d Device) Online() bool {
	return d.State == "device"
}

// Config contains client configuration options.
type Config struct {
	// Binary is the adb executable to invoke. Defaults to "adb" on PATH.
	Binary string

	// Timeout bounds each adb invocation.
	Timeout time.Duration

	// Logger receives command-level debug output. Optional.
	Logger Logger
}

// Client executes adb commands against connected Android devices.
//
// All device interaction in the service goes through this type, so input
// validation (key event names, component charsets, text quoting) happens
// in exactly one place.
type Client struct {
	binary  string
	timeout time.Duration
	logger  Logger
}

// NewClient creates a client from the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.Binary == "" {
		cfg.Binary = "adb"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Client{
		binary:  cfg.Binary,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// run executes one adb invocation and returns its combined output.
func (c *Client) run(ctx context.Context, serial string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	full := args
	if serial != "" {
		full = append([]string{"-s", serial}, args...)
	}

	c.logger.Debug("running adb command", "args", strings.Join(full, " "))

	cmd := exec.CommandContext(ctx, c.binary, full...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("adb %s: %w: %s", args[0], err, output)
		}
		return output, fmt.Errorf("adb %s: %w", args[0], err)
	}
	return output, nil
}

// Devices lists connected devices, including offline and unauthorized ones.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.run(ctx, "", "devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

// OnlineDevices lists only devices in the "device" state.
func (c *Client) OnlineDevices(ctx context.Context) ([]Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	online := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.Online() {
			online = append(online, d)
		}
	}
	return online, nil
}

// ResolveSerial picks the device a command should run against.
//
// A configured serial wins if that device is online. With no configured
// serial, exactly one online device is accepted; zero or several is an
// error the caller surfaces to the user.
func (c *Client) ResolveSerial(ctx context.Context, configured string) (string, error) {
	online, err := c.OnlineDevices(ctx)
	if err != nil {
		return "", err
	}

	if configured != "" {
		for _, d := range online {
			if d.Serial == configured {
				return configured, nil
			}
		}
		return "", fmt.Errorf("%w: %s", ErrDeviceOffline, configured)
	}

	switch len(online) {
	case 0:
		return "", ErrNoDevice
	case 1:
		return online[0].Serial, nil
	default:
		return "", ErrAmbiguousDevice
	}
}

// Shell runs a raw shell command string on the device.
func (c *Client) Shell(ctx context.Context, serial, command string) (string, error) {
	return c.run(ctx, serial, "shell", command)
}

// ShellArgv runs a shell command given as separate arguments, avoiding the
// device-side word splitting Shell is subject to.
func (c *Client) ShellArgv(ctx context.Context, serial string, argv ...string) (string, error) {
	args := append([]string{"shell"}, argv...)
	return c.run(ctx, serial, args...)
}

// InputText types text on the device. Newlines are stripped, since
// `input text` treats them as command terminators, and the remainder is
// quoted so spaces and shell metacharacters survive the device shell.
func (c *Client) InputText(ctx context.Context, serial, text string) (string, error) {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	return c.ShellArgv(ctx, serial, "input", "text", quoteShell(text))
}

// Tap sends a tap at the given screen coordinates.
func (c *Client) Tap(ctx context.Context, serial string, x, y int) (string, error) {
	return c.ShellArgv(ctx, serial, "input", "tap",
		strconv.Itoa(x), strconv.Itoa(y))
}

// Swipe performs a swipe gesture. A non-positive duration falls back to
// the default.
func (c *Client) Swipe(ctx context.Context, serial string, x1, y1, x2, y2 int, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = defaultSwipeDuration
	}
	return c.ShellArgv(ctx, serial, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.Itoa(int(duration.Milliseconds())))
}

// KeyEvent sends a key event. The name must be a numeric keycode or a
// KEYCODE_* symbol; anything else is rejected locally.
func (c *Client) KeyEvent(ctx context.Context, serial, key string) (string, error) {
	key = strings.TrimSpace(key)
	if !keyEventPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKeyEvent, key)
	}
	return c.ShellArgv(ctx, serial, "input", "keyevent", key)
}

// StartApp launches an application. With an activity it uses an explicit
// `am start -n` intent; without one it falls back to monkey, which resolves
// the package's launcher activity on the device.
func (c *Client) StartApp(ctx context.Context, serial, pkg, activity string) (string, error) {
	if !componentPattern.MatchString(pkg) {
		return "", fmt.Errorf("%w: package %q", ErrInvalidComponent, pkg)
	}
	if activity != "" && !componentPattern.MatchString(activity) {
		return "", fmt.Errorf("%w: activity %q", ErrInvalidComponent, activity)
	}

	if activity != "" {
		return c.ShellArgv(ctx, serial, "am", "start", "-n", pkg+"/"+activity)
	}
	return c.ShellArgv(ctx, serial,
		"monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
}

// ListPackages returns the package names of installed applications.
func (c *Client) ListPackages(ctx context.Context, serial string) ([]string, error) {
	out, err := c.ShellArgv(ctx, serial, "pm", "list", "packages")
	if err != nil {
		return nil, err
	}

	var packages []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "package:"); ok && name != "" {
			packages = append(packages, name)
		}
	}
	return packages, nil
}

// parseDevices parses `adb devices -l` output. The first line is a header;
// each following non-blank line is a serial, a state, and key:value pairs.
func parseDevices(out string) []Device {
	var devices []Device
	for i, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if i == 0 || line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		d := Device{Serial: fields[0], State: fields[1]}
		for _, field := range fields[2:] {
			if v, ok := strings.CutPrefix(field, "model:"); ok {
				d.Model = v
			}
			if v, ok := strings.CutPrefix(field, "product:"); ok {
				d.Product = v
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// quoteShell single-quotes a string for the device shell, escaping any
// embedded single quotes.
func quoteShell(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
