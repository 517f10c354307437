package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeState()
	if err := c.normalizeTasks(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeTransport()
	c.normalizeServer()
	c.normalizeArchive()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadBaseDir) == "" {
		c.Paths.DownloadBaseDir = defaultDownloadBaseDir
	}
	if c.Paths.DownloadBaseDir, err = expandPath(c.Paths.DownloadBaseDir); err != nil {
		return fmt.Errorf("paths.download_base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeState() {
	c.State.Backend = strings.ToLower(strings.TrimSpace(c.State.Backend))
	if c.State.Backend == "" {
		c.State.Backend = defaultStateBackend
	}
	c.State.RedisAddr = strings.TrimSpace(c.State.RedisAddr)
	if c.State.RedisAddr == "" {
		c.State.RedisAddr = defaultRedisAddr
	}
	if c.State.RedisPassword == "" {
		if value, ok := os.LookupEnv("DOCBOT_REDIS_PASSWORD"); ok {
			c.State.RedisPassword = strings.TrimSpace(value)
		}
	}
	if c.State.Prefix == "" {
		c.State.Prefix = defaultStatePrefix
	}
	if c.State.TimeoutSeconds <= 0 {
		c.State.TimeoutSeconds = defaultStateTimeoutSeconds
	}
}

func (c *Config) normalizeTasks() error {
	var err error
	if strings.TrimSpace(c.Tasks.DBPath) == "" {
		c.Tasks.DBPath = filepath.Join(c.Paths.DataDir, defaultTaskDBName)
	}
	if c.Tasks.DBPath, err = expandPath(c.Tasks.DBPath); err != nil {
		return fmt.Errorf("tasks.db_path: %w", err)
	}
	if c.Tasks.PollIntervalMillis <= 0 {
		c.Tasks.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Tasks.WaitSeconds <= 0 {
		c.Tasks.WaitSeconds = defaultWaitSeconds
	}
	if c.Tasks.MaxRetries < 0 {
		c.Tasks.MaxRetries = 0
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.Ghostscript = strings.TrimSpace(c.Tools.Ghostscript)
	if c.Tools.Ghostscript == "" {
		c.Tools.Ghostscript = defaultGhostscript
	}
	c.Tools.LibreOffice = strings.TrimSpace(c.Tools.LibreOffice)
	if c.Tools.LibreOffice == "" {
		c.Tools.LibreOffice = defaultLibreOffice
	}
	c.Tools.Scanner = strings.TrimSpace(c.Tools.Scanner)
	if c.Tools.Scanner == "" {
		c.Tools.Scanner = defaultScanner
	}
	c.Tools.XvfbRun = strings.TrimSpace(c.Tools.XvfbRun)
	c.Tools.ChromiumPath = strings.TrimSpace(c.Tools.ChromiumPath)
	if c.Tools.ChromiumPath == "" {
		if value, ok := os.LookupEnv("PUPPETEER_EXECUTABLE_PATH"); ok {
			c.Tools.ChromiumPath = strings.TrimSpace(value)
		}
	}

	backends := make([]string, 0, len(c.Tools.MarkdownBackends))
	seen := make(map[string]struct{}, len(c.Tools.MarkdownBackends))
	for _, backend := range c.Tools.MarkdownBackends {
		normalized := strings.ToLower(strings.TrimSpace(backend))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		backends = append(backends, normalized)
	}
	if len(backends) == 0 {
		backends = append(backends, defaultMarkdownBackends...)
	}
	c.Tools.MarkdownBackends = backends
}

func (c *Config) normalizeTransport() {
	c.Transport.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transport.BaseURL), "/")
	if c.Transport.APIKey == "" {
		if value, ok := os.LookupEnv("DOCBOT_TRANSPORT_API_KEY"); ok {
			c.Transport.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transport.Instance = strings.TrimSpace(c.Transport.Instance)
	if c.Transport.Instance == "" {
		c.Transport.Instance = defaultTransportInstance
	}
	if c.Transport.RequestTimeout <= 0 {
		c.Transport.RequestTimeout = defaultTransportTimeout
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	if c.Server.WebhookToken == "" {
		if value, ok := os.LookupEnv("DOCBOT_WEBHOOK_TOKEN"); ok {
			c.Server.WebhookToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeArchive() {
	if c.Archive.AzureConnectionString == "" {
		if value, ok := os.LookupEnv("AZURE_STORAGE_CONNECTION_STRING"); ok {
			c.Archive.AzureConnectionString = strings.TrimSpace(value)
		}
	}
	c.Archive.AzureContainer = strings.TrimSpace(c.Archive.AzureContainer)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DOCBOT_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
