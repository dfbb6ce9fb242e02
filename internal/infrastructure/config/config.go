package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for AutoGLM Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	AutoGLM  AutoGLMConfig  `yaml:"autoglm"`
	ADB      ADBConfig      `yaml:"adb"`
	Security SecurityConfig `yaml:"security"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AutoGLMConfig describes how the external AutoGLM engine process is launched
// and where its state (pid file, log file, schedules) lives.
type AutoGLMConfig struct {
	// Dir is the engine checkout, used as the working directory for the
	// spawned process.
	Dir string `yaml:"dir"`

	// StateDir holds the pid file, the append-only log, and schedules.json.
	StateDir string `yaml:"state_dir"`

	// Binary and Script form the launch command (default: python main.py).
	Binary string `yaml:"binary"`
	Script string `yaml:"script"`

	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	DeviceID string `yaml:"device_id"`
	MaxSteps int    `yaml:"max_steps"`
	Lang     string `yaml:"lang"`
}

// ADBConfig contains settings for the adb command-line client.
type ADBConfig struct {
	// Binary is the adb executable name or path.
	Binary string `yaml:"binary"`

	// TimeoutSeconds bounds individual adb invocations.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`

	// PasswordHash is the Argon2id PHC hash of the operator password.
	PasswordHash string `yaml:"password_hash"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOGLM_SECTION_KEY
// For example: AUTOGLM_DATABASE_PATH, AUTOGLM_ENGINE_APIKEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8083,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 660, // a prompt-driven task run (600s) plus slack
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(home, ".autoglm", "web", "autoglm.db"),
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		AutoGLM: AutoGLMConfig{
			Dir:      filepath.Join(home, "Open-AutoGLM"),
			StateDir: filepath.Join(home, ".autoglm", "web"),
			Binary:   "python",
			Script:   "main.py",
			BaseURL:  "https://open.bigmodel.cn/api/paas/v4",
			Model:    "autoglm-phone",
		},
		ADB: ADBConfig{
			Binary:         "adb",
			TimeoutSeconds: 20,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 720,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUTOGLM_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOGLM_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AUTOGLM_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("AUTOGLM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTOGLM_DIR"); v != "" {
		cfg.AutoGLM.Dir = v
	}
	if v := os.Getenv("AUTOGLM_STATE_DIR"); v != "" {
		cfg.AutoGLM.StateDir = v
	}
	if v := os.Getenv("AUTOGLM_ENGINE_APIKEY"); v != "" {
		cfg.AutoGLM.APIKey = v
	}
	if v := os.Getenv("AUTOGLM_ENGINE_DEVICE_ID"); v != "" {
		cfg.AutoGLM.DeviceID = v
	}
	if v := os.Getenv("AUTOGLM_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("AUTOGLM_PASSWORD_HASH"); v != "" {
		cfg.Security.PasswordHash = v
	}
}

// minJWTSecretLength is the minimum accepted JWT secret length.
// Shorter secrets make forged operator tokens feasible.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.AutoGLM.Dir == "" {
		errs = append(errs, "autoglm.dir is required")
	}
	if c.AutoGLM.StateDir == "" {
		errs = append(errs, "autoglm.state_dir is required")
	}
	if c.ADB.TimeoutSeconds <= 0 {
		errs = append(errs, "adb.timeout_seconds must be positive")
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AUTOGLM_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}
	if c.Security.PasswordHash == "" {
		errs = append(errs, "security.password_hash is required (set AUTOGLM_PASSWORD_HASH environment variable)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// APIKeyConfigured reports whether the engine API key is set to a usable
// value. The upstream engine ships placeholder keys that must be rejected
// the same as an empty key.
func (c *AutoGLMConfig) APIKeyConfigured() bool {
	key := strings.TrimSpace(c.APIKey)
	return key != "" && key != "sk-your-apikey" && key != "EMPTY"
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
