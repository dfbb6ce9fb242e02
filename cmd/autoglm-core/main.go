// AutoGLM Core - phone automation service
//
// This is the main entry point for the service. It supervises the external
// AutoGLM engine process, drives Android devices over adb, runs stored
// step tasks on cron schedules, and exposes everything over a REST API
// with a live log stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/autoglm/autoglm-core/migrations"

	"github.com/autoglm/autoglm-core/internal/adb"
	"github.com/autoglm/autoglm-core/internal/api"
	"github.com/autoglm/autoglm-core/internal/autoglm"
	"github.com/autoglm/autoglm-core/internal/infrastructure/config"
	"github.com/autoglm/autoglm-core/internal/infrastructure/database"
	"github.com/autoglm/autoglm-core/internal/infrastructure/logging"
	"github.com/autoglm/autoglm-core/internal/schedule"
	"github.com/autoglm/autoglm-core/internal/session"
	"github.com/autoglm/autoglm-core/internal/task"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AutoGLM Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Task storage
	taskRepo := task.NewSQLiteRepository(db.DB)

	// adb client for device control
	adbClient := adb.NewClient(adb.Config{
		Binary:  cfg.ADB.Binary,
		Timeout: time.Duration(cfg.ADB.TimeoutSeconds) * time.Second,
		Logger:  log,
	})

	// Engine process supervisor
	supervisor, err := autoglm.NewSupervisor(autoglm.Config{
		Dir:      cfg.AutoGLM.Dir,
		StateDir: cfg.AutoGLM.StateDir,
		Binary:   cfg.AutoGLM.Binary,
		Script:   cfg.AutoGLM.Script,
		BaseURL:  cfg.AutoGLM.BaseURL,
		Model:    cfg.AutoGLM.Model,
		APIKey:   cfg.AutoGLM.APIKey,
		DeviceID: cfg.AutoGLM.DeviceID,
		MaxSteps: cfg.AutoGLM.MaxSteps,
		Lang:     cfg.AutoGLM.Lang,
		Devices:  adbClient,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating engine supervisor: %w", err)
	}
	log.Info("engine supervisor initialised",
		"state_dir", cfg.AutoGLM.StateDir,
		"running", supervisor.Status().Running,
	)

	// Step runner and executor
	runner, err := task.NewRunner(task.RunnerConfig{
		Devices:  adbClient,
		Engine:   supervisor,
		DeviceID: cfg.AutoGLM.DeviceID,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating task runner: %w", err)
	}
	executor, err := task.NewExecutor(taskRepo, runner)
	if err != nil {
		return fmt.Errorf("creating task executor: %w", err)
	}

	// Schedule store and scheduler
	store, err := schedule.NewStore(filepath.Join(cfg.AutoGLM.StateDir, "schedules.json"))
	if err != nil {
		return fmt.Errorf("opening schedule store: %w", err)
	}
	scheduler, err := schedule.NewScheduler(schedule.Config{
		Store:    store,
		Executor: executor,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	go scheduler.Run(ctx)
	log.Info("scheduler started")

	// Interactive sessions over the shared engine log
	sessions, err := session.NewRegistry(supervisor)
	if err != nil {
		return fmt.Errorf("creating session registry: %w", err)
	}

	// API server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		Tasks:     taskRepo,
		Executor:  executor,
		Engine:    supervisor,
		Devices:   adbClient,
		Schedules: store,
		Sessions:  sessions,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// The engine process outlives the service on purpose: a running
	// automation keeps going and is re-adopted from the pid file on the
	// next start.

	log.Info("AutoGLM Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOGLM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOGLM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
