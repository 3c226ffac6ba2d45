package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"live-avatar-demo/internal/models"
)

const (
	defaultHost     = "https://openapi.akool.com"
	defaultAvatarID = "Olivia_1080P_back"
	defaultLanguage = "en"
	defaultDuration = 10
)

// OpenAPIConfig holds provisioning API credentials
type OpenAPIConfig struct {
	Host  string `yaml:"host"`
	Token string `yaml:"token"`
}

// Configured reports whether both host and token are set
func (c OpenAPIConfig) Configured() bool {
	return c.Host != "" && c.Token != ""
}

// SessionDefaults holds the initial values of the on-screen fields
type SessionDefaults struct {
	AvatarID        string
	DurationMinutes int
	Avatar          models.AvatarConfiguration
}

// Config holds all application configuration
type Config struct {
	OpenAPI     OpenAPIConfig
	Defaults    SessionDefaults
	DBPath      string
	StaticDir   string
	SettingsDir string
	Port        string
	RedisURL    string
	LogLevel    string
	// AgentOrigins restricts which origins may attach the RTC agent
	AgentOrigins []string
}

// Load loads configuration from environment and files.
// A missing secrets file is not an error; the provisioning API then stays
// unconfigured until host and token come from the environment.
func Load() (*Config, error) {
	settingsDir := getEnvOrDefault("SETTINGS_DIR", "settings")

	cfg := &Config{
		DBPath:       getEnvOrDefault("DB_PATH", "data/app.db"),
		StaticDir:    getEnvOrDefault("STATIC_DIR", "static"),
		SettingsDir:  settingsDir,
		Port:         getEnvOrDefault("PORT", "8080"),
		RedisURL:     os.Getenv("REDIS_URL"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		AgentOrigins: splitList(os.Getenv("AGENT_ORIGINS")),
	}

	openapiCfg, err := loadOpenAPIConfig(filepath.Join(settingsDir, "secrets", "openapi.yaml"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		openapiCfg = &OpenAPIConfig{}
	case err != nil:
		return nil, err
	}
	if host := os.Getenv("OPENAPI_HOST"); host != "" {
		openapiCfg.Host = host
	}
	if token := os.Getenv("OPENAPI_TOKEN"); token != "" {
		openapiCfg.Token = token
	}
	if openapiCfg.Host == "" {
		openapiCfg.Host = defaultHost
	}
	cfg.OpenAPI = *openapiCfg

	defaults, err := loadSessionDefaults()
	if err != nil {
		return nil, err
	}
	cfg.Defaults = defaults

	return cfg, nil
}

// loadOpenAPIConfig loads provisioning API credentials from a YAML file
func loadOpenAPIConfig(path string) (*OpenAPIConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg OpenAPIConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cfg, nil
}

func loadSessionDefaults() (SessionDefaults, error) {
	d := SessionDefaults{
		AvatarID:        getEnvOrDefault("AVATAR_ID", defaultAvatarID),
		DurationMinutes: defaultDuration,
		Avatar: models.AvatarConfiguration{
			VoiceID:       os.Getenv("VOICE_ID"),
			VoiceURL:      os.Getenv("VOICE_URL"),
			Language:      getEnvOrDefault("LANGUAGE", defaultLanguage),
			Mode:          models.ModeDialogue,
			BackgroundURL: os.Getenv("BACKGROUND_URL"),
		},
	}

	if v := os.Getenv("SESSION_DURATION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return d, fmt.Errorf("invalid SESSION_DURATION %q", v)
		}
		d.DurationMinutes = n
	}

	if v := os.Getenv("MODE_TYPE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || (models.ModeType(n) != models.ModeRepeat && models.ModeType(n) != models.ModeDialogue) {
			return d, fmt.Errorf("invalid MODE_TYPE %q", v)
		}
		d.Avatar.Mode = models.ModeType(n)
	}

	return d, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList splits a comma separated value, dropping empty items
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
