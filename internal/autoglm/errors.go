package autoglm

import "errors"

var (
	// ErrAlreadyRunning indicates a start was requested while the engine
	// process is already alive.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning indicates an operation that needs a live engine
	// process found none.
	ErrNotRunning = errors.New("engine not running")

	// ErrAPIKeyMissing indicates the engine API key is absent or still a
	// placeholder value.
	ErrAPIKeyMissing = errors.New("engine api key not configured")

	// ErrHandleUnavailable indicates the engine is alive but its stdin is
	// not held by this service, usually because the process predates the
	// current service instance. Stopping and restarting the engine
	// reattaches the handle.
	ErrHandleUnavailable = errors.New("engine stdin handle unavailable")
)
