package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"docbot/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("DOCBOT_REDIS_PASSWORD", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantDownloads := filepath.Join(tempHome, ".local", "share", "docbot", "downloads")
	if cfg.Paths.DownloadBaseDir != wantDownloads {
		t.Fatalf("unexpected download dir: got %q want %q", cfg.Paths.DownloadBaseDir, wantDownloads)
	}
	wantDB := filepath.Join(tempHome, ".local", "share", "docbot", "tasks.db")
	if cfg.Tasks.DBPath != wantDB {
		t.Fatalf("unexpected task db path: got %q want %q", cfg.Tasks.DBPath, wantDB)
	}
	if cfg.State.Backend != "redis" {
		t.Fatalf("expected redis backend by default, got %q", cfg.State.Backend)
	}
	if cfg.State.Prefix != "docbot:" {
		t.Fatalf("unexpected state prefix %q", cfg.State.Prefix)
	}
	if cfg.StateTTL() != 24*time.Hour {
		t.Fatalf("unexpected state ttl %s", cfg.StateTTL())
	}
	if len(cfg.Tools.MarkdownBackends) != 4 || cfg.Tools.MarkdownBackends[0] != "md-to-pdf" {
		t.Fatalf("unexpected markdown backends %v", cfg.Tools.MarkdownBackends)
	}
	if cfg.Server.Bind != "127.0.0.1:7390" {
		t.Fatalf("unexpected server bind %q", cfg.Server.Bind)
	}
	if cfg.MirrorEnabled() {
		t.Fatal("expected blob mirror disabled by default")
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "docbot.toml")

	type payload struct {
		Paths struct {
			DownloadBaseDir string `toml:"download_base_dir"`
		} `toml:"paths"`
		State struct {
			Backend string `toml:"backend"`
			Prefix  string `toml:"prefix"`
		} `toml:"state"`
		Tools struct {
			MarkdownBackends []string `toml:"markdown_backends"`
		} `toml:"tools"`
	}
	custom := payload{}
	custom.Paths.DownloadBaseDir = filepath.Join(tempDir, "downloads")
	custom.State.Backend = " Memory "
	custom.State.Prefix = "bot:"
	custom.Tools.MarkdownBackends = []string{"Pandoc", "pandoc", " wkhtmltopdf "}

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got resolved=%q exists=%v", resolved, exists)
	}
	if cfg.State.Backend != "memory" {
		t.Fatalf("expected normalized backend, got %q", cfg.State.Backend)
	}
	if cfg.State.Prefix != "bot:" {
		t.Fatalf("unexpected prefix %q", cfg.State.Prefix)
	}
	if got := strings.Join(cfg.Tools.MarkdownBackends, ","); got != "pandoc,wkhtmltopdf" {
		t.Fatalf("unexpected backends %q", got)
	}
	if cfg.Paths.DownloadBaseDir != custom.Paths.DownloadBaseDir {
		t.Fatalf("unexpected download dir %q", cfg.Paths.DownloadBaseDir)
	}
}

func TestEnvFallbacksFillMissingSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCBOT_REDIS_PASSWORD", "env-redis")
	t.Setenv("DOCBOT_TRANSPORT_API_KEY", "env-transport")
	t.Setenv("DOCBOT_WEBHOOK_TOKEN", "env-webhook")

	configPath := filepath.Join(t.TempDir(), "docbot.toml")
	contents := "[transport]\napi_key = \"file-transport\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.State.RedisPassword != "env-redis" {
		t.Errorf("expected redis password from env, got %q", cfg.State.RedisPassword)
	}
	if cfg.Transport.APIKey != "file-transport" {
		t.Errorf("expected file value to win for transport key, got %q", cfg.Transport.APIKey)
	}
	if cfg.Server.WebhookToken != "env-webhook" {
		t.Errorf("expected webhook token from env, got %q", cfg.Server.WebhookToken)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[compression]") {
		t.Fatalf("sample config missing compression section: %s", contents)
	}

	cfg := config.Default()
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DownloadBaseDir, "docbot") {
		t.Fatalf("expected download dir to contain docbot, got %q", cfg.Paths.DownloadBaseDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"backend", func(c *config.Config) { c.State.Backend = "etcd" }, "state.backend"},
		{"ttl", func(c *config.Config) { c.State.TTLSeconds = 0 }, "state.ttl_seconds"},
		{"heartbeat", func(c *config.Config) { c.Tasks.WorkerTimeoutSeconds = c.Tasks.HeartbeatSeconds }, "worker_timeout_seconds"},
		{"thresholds", func(c *config.Config) { c.Compression.AutoMediumBelowKB = c.Compression.AutoLowBelowKB }, "thresholds must increase"},
		{"markdown", func(c *config.Config) { c.Tools.MarkdownBackends = []string{"latex"} }, "unsupported backend"},
		{"azure", func(c *config.Config) { c.Archive.AzureContainer = "box" }, "must be set together"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}
