// Package api provides the HTTP REST API and WebSocket server for the
// automation service.
//
// It exposes task management, schedule management, engine process control,
// interactive session endpoints, and device listing to operator clients.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/autoglm/autoglm-core/internal/adb"
	"github.com/autoglm/autoglm-core/internal/autoglm"
	"github.com/autoglm/autoglm-core/internal/infrastructure/config"
	"github.com/autoglm/autoglm-core/internal/infrastructure/logging"
	"github.com/autoglm/autoglm-core/internal/schedule"
	"github.com/autoglm/autoglm-core/internal/session"
	"github.com/autoglm/autoglm-core/internal/task"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the engine process surface the API server needs: lifecycle
// control plus log access. *autoglm.Supervisor satisfies it.
type Engine interface {
	Status() autoglm.Status
	Start(ctx context.Context, opts autoglm.StartOptions) error
	Stop(ctx context.Context) error
	LogSize() (int64, error)
	TailLog(offset, maxBytes int64) (string, int64, error)
	SendInput(line string) error
}

// DeviceLister lists connected Android devices and their installed
// packages. *adb.Client satisfies it.
type DeviceLister interface {
	Devices(ctx context.Context) ([]adb.Device, error)
	ResolveSerial(ctx context.Context, configured string) (string, error)
	ListPackages(ctx context.Context, serial string) ([]string, error)
}

// TaskExecutor runs a stored task by ID. *task.Executor satisfies it.
type TaskExecutor interface {
	Execute(ctx context.Context, taskID string, params map[string]string) ([]task.StepResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Tasks     task.Repository
	Executor  TaskExecutor
	Engine    Engine
	Devices   DeviceLister
	Schedules *schedule.Store
	Sessions  *session.Registry
	Version   string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	security  config.SecurityConfig
	logger    *logging.Logger
	tasks     task.Repository
	executor  TaskExecutor
	engine    Engine
	devices   DeviceLister
	schedules *schedule.Store
	sessions  *session.Registry
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tasks == nil {
		return nil, fmt.Errorf("task repository is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine supervisor is required")
	}
	if deps.Schedules == nil {
		return nil, fmt.Errorf("schedule store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}

	return &Server{
		cfg:       deps.Config,
		security:  deps.Security,
		logger:    deps.Logger,
		tasks:     deps.Tasks,
		executor:  deps.Executor,
		engine:    deps.Engine,
		devices:   deps.Devices,
		schedules: deps.Schedules,
		sessions:  deps.Sessions,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
