package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DownloadBaseDir string `toml:"download_base_dir"`
	LogDir          string `toml:"log_dir"`
	DataDir         string `toml:"data_dir"`
}

// State contains configuration for the conversation state store.
type State struct {
	Backend        string `toml:"backend"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	Prefix         string `toml:"prefix"`
	TTLSeconds     int    `toml:"ttl_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Tasks contains configuration for the background task substrate.
type Tasks struct {
	AsyncEnabled         bool   `toml:"async_enabled"`
	DBPath               string `toml:"db_path"`
	Workers              int    `toml:"workers"`
	PollIntervalMillis   int    `toml:"poll_interval_ms"`
	ProbeCacheSeconds    int    `toml:"probe_cache_seconds"`
	HeartbeatSeconds     int    `toml:"heartbeat_seconds"`
	WorkerTimeoutSeconds int    `toml:"worker_timeout_seconds"`
	AwaitBudgetSeconds   int    `toml:"await_budget_seconds"`
	WaitSeconds          int    `toml:"wait_seconds"`
	MaxStatusChecks      int    `toml:"max_status_checks"`
	TaskTimeoutSeconds   int    `toml:"task_timeout_seconds"`
	MaxRetries           int    `toml:"max_retries"`
	RetentionHours       int    `toml:"retention_hours"`
}

// Tools contains external converter settings.
type Tools struct {
	Ghostscript          string   `toml:"ghostscript"`
	LibreOffice          string   `toml:"libreoffice"`
	Scanner              string   `toml:"scanner"`
	XvfbRun              string   `toml:"xvfb_run"`
	MarkdownBackends     []string `toml:"markdown_backends"`
	ChromiumPath         string   `toml:"chromium_path"`
	TimeoutSeconds       int      `toml:"timeout_seconds"`
	OfficeTimeoutSeconds int      `toml:"office_timeout_seconds"`
}

// Compression contains the size thresholds used by the auto compression level.
type Compression struct {
	AutoLowBelowKB    int64 `toml:"auto_low_below_kb"`
	AutoMediumBelowKB int64 `toml:"auto_medium_below_kb"`
	AutoHighBelowKB   int64 `toml:"auto_high_below_kb"`
}

// Transport contains configuration for the messaging gateway.
type Transport struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Instance       string `toml:"instance"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Server contains the webhook/health listener configuration.
type Server struct {
	Bind         string `toml:"bind"`
	WebhookToken string `toml:"webhook_token"`
}

// Archive contains configuration for All-Media archival and stale cleanup.
type Archive struct {
	StaleTaskHours         int    `toml:"stale_task_hours"`
	CleanupIntervalMinutes int    `toml:"cleanup_interval_minutes"`
	AzureConnectionString  string `toml:"azure_connection_string"`
	AzureContainer         string `toml:"azure_container"`
}

// Notifications contains operator alert settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docbot.
//
// Configuration sections by subsystem:
//   - Paths: download, log, and data directories
//   - State: conversation state backend (redis or memory)
//   - Tasks: background task substrate and waiting budgets
//   - Tools: external converter binaries and timeouts
//   - Compression: auto level thresholds
//   - Transport: messaging gateway credentials
//   - Server: webhook listener
//   - Archive: All-Media archival, stale cleanup, optional blob mirror
//   - Notifications: ntfy operator alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	State         State         `toml:"state"`
	Tasks         Tasks         `toml:"tasks"`
	Tools         Tools         `toml:"tools"`
	Compression   Compression   `toml:"compression"`
	Transport     Transport     `toml:"transport"`
	Server        Server        `toml:"server"`
	Archive       Archive       `toml:"archive"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docbot/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docbot.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadBaseDir, c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Tasks.DBPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create task database directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file used by the serve daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "docbot.lock")
}

// StateTTL returns the sliding expiry applied to persisted conversation state.
func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.State.TTLSeconds) * time.Second
}

// AwaitBudget returns the global time budget for awaiting outstanding tasks at finalize.
func (c *Config) AwaitBudget() time.Duration {
	return time.Duration(c.Tasks.AwaitBudgetSeconds) * time.Second
}

// ToolTimeout returns the default external tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// OfficeTimeout returns the LibreOffice conversion timeout.
func (c *Config) OfficeTimeout() time.Duration {
	return time.Duration(c.Tools.OfficeTimeoutSeconds) * time.Second
}

// StaleTaskAge returns how long an unreferenced task directory may linger.
func (c *Config) StaleTaskAge() time.Duration {
	return time.Duration(c.Archive.StaleTaskHours) * time.Hour
}

// MirrorEnabled reports whether delivered outputs are mirrored to blob storage.
func (c *Config) MirrorEnabled() bool {
	return strings.TrimSpace(c.Archive.AzureConnectionString) != "" && strings.TrimSpace(c.Archive.AzureContainer) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
