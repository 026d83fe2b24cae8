// Package config loads planctl configuration from the environment, with an
// optional YAML file overlay.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// Backend connection
	ServerURL     string
	ClientTimeout time.Duration

	// Wizard behavior
	SkipReasonPolicy string // "require" or "placeholder"

	// State persistence
	StateDir string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig is the YAML shape of ~/.config/planctl/config.yaml. Every field
// is optional; set fields override the environment.
type fileConfig struct {
	ServerURL        string `yaml:"server_url"`
	ClientTimeout    string `yaml:"client_timeout"`
	SkipReasonPolicy string `yaml:"skip_reason_policy"`
	StateDir         string `yaml:"state_dir"`
	LogFile          string `yaml:"log_file"`
	LogLevel         string `yaml:"log_level"`
}

// Load reads configuration from environment variables, then overlays the
// config file if one exists.
func Load() Config {
	cfg := Config{
		ServerURL:        getEnv("PLANCTL_SERVER_URL", "http://localhost:5000"),
		ClientTimeout:    parseDuration(getEnv("PLANCTL_CLIENT_TIMEOUT", ""), 2*time.Minute),
		SkipReasonPolicy: getEnv("PLANCTL_SKIP_REASON_POLICY", "require"),
		StateDir:         getEnv("PLANCTL_STATE_DIR", defaultStateDir()),
		LogFile:          getEnv("PLANCTL_LOG_FILE", defaultLogFile()),
		LogLevel:         parseLogLevel(getEnv("PLANCTL_LOG_LEVEL", "INFO")),
	}

	if path := configFilePath(); path != "" {
		cfg.applyFile(path)
	}

	return cfg
}

func (c *Config) applyFile(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		slog.Warn("config file unparsable, ignoring", "path", path, "error", err)
		return
	}
	if fc.ServerURL != "" {
		c.ServerURL = fc.ServerURL
	}
	if fc.ClientTimeout != "" {
		c.ClientTimeout = parseDuration(fc.ClientTimeout, c.ClientTimeout)
	}
	if fc.SkipReasonPolicy != "" {
		c.SkipReasonPolicy = fc.SkipReasonPolicy
	}
	if fc.StateDir != "" {
		c.StateDir = fc.StateDir
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	if fc.LogLevel != "" {
		c.LogLevel = parseLogLevel(fc.LogLevel)
	}
}

func configFilePath() string {
	if p := os.Getenv("PLANCTL_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "planctl", "config.yaml")
}

func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "planctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "planctl-state")
	}
	return filepath.Join(home, ".local", "state", "planctl")
}

func defaultLogFile() string {
	return filepath.Join(os.TempDir(), "planctl.log")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
