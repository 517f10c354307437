package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var knownMarkdownBackends = map[string]struct{}{
	"md-to-pdf":   {},
	"md2pdf":      {},
	"pandoc":      {},
	"wkhtmltopdf": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateState(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateCompression(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("state.backend: unsupported value %q (use redis or memory)", c.State.Backend)
	}
	if c.State.RedisDB < 0 {
		return errors.New("state.redis_db must not be negative")
	}
	return ensurePositiveMap(map[string]int{
		"state.ttl_seconds":     c.State.TTLSeconds,
		"state.timeout_seconds": c.State.TimeoutSeconds,
	})
}

func (c *Config) validateTasks() error {
	if c.Tasks.Workers < 0 {
		return errors.New("tasks.workers must not be negative")
	}
	if err := ensurePositiveMap(map[string]int{
		"tasks.heartbeat_seconds":      c.Tasks.HeartbeatSeconds,
		"tasks.worker_timeout_seconds": c.Tasks.WorkerTimeoutSeconds,
		"tasks.await_budget_seconds":   c.Tasks.AwaitBudgetSeconds,
		"tasks.max_status_checks":      c.Tasks.MaxStatusChecks,
		"tasks.task_timeout_seconds":   c.Tasks.TaskTimeoutSeconds,
		"tasks.probe_cache_seconds":    c.Tasks.ProbeCacheSeconds,
		"tasks.retention_hours":        c.Tasks.RetentionHours,
	}); err != nil {
		return err
	}
	if c.Tasks.WorkerTimeoutSeconds <= c.Tasks.HeartbeatSeconds {
		return errors.New("tasks.worker_timeout_seconds must be greater than tasks.heartbeat_seconds")
	}
	return nil
}

func (c *Config) validateTools() error {
	for _, backend := range c.Tools.MarkdownBackends {
		if _, ok := knownMarkdownBackends[backend]; !ok {
			return fmt.Errorf("tools.markdown_backends: unsupported backend %q", backend)
		}
	}
	return ensurePositiveMap(map[string]int{
		"tools.timeout_seconds":        c.Tools.TimeoutSeconds,
		"tools.office_timeout_seconds": c.Tools.OfficeTimeoutSeconds,
	})
}

func (c *Config) validateCompression() error {
	low := c.Compression.AutoLowBelowKB
	medium := c.Compression.AutoMediumBelowKB
	high := c.Compression.AutoHighBelowKB
	if low <= 0 || medium <= 0 || high <= 0 {
		return errors.New("compression thresholds must be positive")
	}
	if !(low < medium && medium < high) {
		return errors.New("compression thresholds must increase: auto_low_below_kb < auto_medium_below_kb < auto_high_below_kb")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if err := ensurePositiveMap(map[string]int{
		"archive.stale_task_hours":         c.Archive.StaleTaskHours,
		"archive.cleanup_interval_minutes": c.Archive.CleanupIntervalMinutes,
	}); err != nil {
		return err
	}
	hasConn := strings.TrimSpace(c.Archive.AzureConnectionString) != ""
	hasContainer := strings.TrimSpace(c.Archive.AzureContainer) != ""
	if hasConn != hasContainer {
		return errors.New("archive.azure_connection_string and archive.azure_container must be set together")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
