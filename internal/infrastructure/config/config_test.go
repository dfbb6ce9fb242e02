package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// writeConfig writes a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func validYAML() string {
	return `
api:
  port: 9090
autoglm:
  dir: /opt/Open-AutoGLM
  state_dir: /var/lib/autoglm
  api_key: sk-test
security:
  jwt:
    secret: "` + testSecret + `"
  password_hash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"
`
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d, want 9090", cfg.API.Port)
	}
	if cfg.AutoGLM.Dir != "/opt/Open-AutoGLM" {
		t.Errorf("autoglm.dir = %q", cfg.AutoGLM.Dir)
	}
	// Defaults survive partial files
	if cfg.ADB.Binary != "adb" {
		t.Errorf("adb.binary default = %q, want adb", cfg.ADB.Binary)
	}
	if cfg.AutoGLM.Binary != "python" || cfg.AutoGLM.Script != "main.py" {
		t.Errorf("launch command default = %q %q", cfg.AutoGLM.Binary, cfg.AutoGLM.Script)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "api: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, validYAML())

	t.Setenv("AUTOGLM_API_PORT", "7070")
	t.Setenv("AUTOGLM_ENGINE_DEVICE_ID", "emulator-5554")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("env override port = %d, want 7070", cfg.API.Port)
	}
	if cfg.AutoGLM.DeviceID != "emulator-5554" {
		t.Errorf("env override device_id = %q", cfg.AutoGLM.DeviceID)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantSub: "jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantSub: "at least 32 characters",
		},
		{
			name:    "missing password hash",
			mutate:  func(c *Config) { c.Security.PasswordHash = "" },
			wantSub: "password_hash is required",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantSub: "api.port",
		},
		{
			name:    "missing engine dir",
			mutate:  func(c *Config) { c.AutoGLM.Dir = "" },
			wantSub: "autoglm.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = testSecret
			cfg.Security.PasswordHash = "$argon2id$..."
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestAPIKeyConfigured(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"", false},
		{"  ", false},
		{"sk-your-apikey", false},
		{"EMPTY", false},
		{"sk-real-key", true},
	}
	for _, tt := range tests {
		c := AutoGLMConfig{APIKey: tt.key}
		if got := c.APIKeyConfigured(); got != tt.want {
			t.Errorf("APIKeyConfigured(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
