package config

import (
	"os"
	"path/filepath"
	"testing"

	"live-avatar-demo/internal/models"
)

func writeSecrets(t *testing.T, dir, content string) string {
	t.Helper()

	secretsDir := filepath.Join(dir, "secrets")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("failed to create secrets dir: %v", err)
	}

	path := filepath.Join(secretsDir, "openapi.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadOpenAPIConfig_ValidFile(t *testing.T) {
	path := writeSecrets(t, t.TempDir(), "host: \"https://example.test\"\ntoken: \"tok-12345\"\n")

	cfg, err := loadOpenAPIConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Host != "https://example.test" {
		t.Errorf("expected host 'https://example.test', got '%s'", cfg.Host)
	}
	if cfg.Token != "tok-12345" {
		t.Errorf("expected token 'tok-12345', got '%s'", cfg.Token)
	}
}

func TestLoadOpenAPIConfig_FileNotFound(t *testing.T) {
	_, err := loadOpenAPIConfig("/nonexistent/path/openapi.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadOpenAPIConfig_InvalidYAML(t *testing.T) {
	path := writeSecrets(t, t.TempDir(), "host: [unterminated")

	if _, err := loadOpenAPIConfig(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoad_WithEnvVars(t *testing.T) {
	tmpDir := t.TempDir()
	writeSecrets(t, tmpDir, "host: \"https://file.test\"\ntoken: \"file-token\"\n")

	t.Setenv("SETTINGS_DIR", tmpDir)
	t.Setenv("DB_PATH", "/custom/db/path.db")
	t.Setenv("STATIC_DIR", "/custom/static")
	t.Setenv("OPENAPI_TOKEN", "env-token")
	t.Setenv("SESSION_DURATION", "25")
	t.Setenv("MODE_TYPE", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.DBPath != "/custom/db/path.db" {
		t.Errorf("expected DB_PATH '/custom/db/path.db', got '%s'", cfg.DBPath)
	}
	if cfg.StaticDir != "/custom/static" {
		t.Errorf("expected STATIC_DIR '/custom/static', got '%s'", cfg.StaticDir)
	}
	if cfg.OpenAPI.Host != "https://file.test" {
		t.Errorf("expected host from file, got '%s'", cfg.OpenAPI.Host)
	}
	if cfg.OpenAPI.Token != "env-token" {
		t.Errorf("expected env token to override file, got '%s'", cfg.OpenAPI.Token)
	}
	if cfg.Defaults.DurationMinutes != 25 {
		t.Errorf("expected duration 25, got %d", cfg.Defaults.DurationMinutes)
	}
	if cfg.Defaults.Avatar.Mode != models.ModeRepeat {
		t.Errorf("expected repeat mode, got %v", cfg.Defaults.Avatar.Mode)
	}
}

func TestLoad_MissingSecretsIsNotFatal(t *testing.T) {
	t.Setenv("SETTINGS_DIR", t.TempDir())
	t.Setenv("OPENAPI_HOST", "")
	t.Setenv("OPENAPI_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OpenAPI.Configured() {
		t.Error("expected provisioning API to be unconfigured without a token")
	}
	if cfg.OpenAPI.Host != defaultHost {
		t.Errorf("expected default host, got '%s'", cfg.OpenAPI.Host)
	}
	if cfg.Defaults.AvatarID != defaultAvatarID {
		t.Errorf("expected default avatar id, got '%s'", cfg.Defaults.AvatarID)
	}
	if cfg.Defaults.Avatar.Mode != models.ModeDialogue {
		t.Errorf("expected dialogue mode by default, got %v", cfg.Defaults.Avatar.Mode)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SETTINGS_DIR", t.TempDir())
	t.Setenv("SESSION_DURATION", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestLoad_AgentOrigins(t *testing.T) {
	t.Setenv("SETTINGS_DIR", t.TempDir())
	t.Setenv("AGENT_ORIGINS", "http://localhost:8080, ,https://demo.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AgentOrigins) != 2 || cfg.AgentOrigins[1] != "https://demo.example" {
		t.Errorf("unexpected agent origins %v", cfg.AgentOrigins)
	}
}
