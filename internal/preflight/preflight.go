package preflight

import (
	"context"

	"docbot/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DownloadBaseDir))
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	if cfg.State.Backend == "redis" {
		results = append(results, CheckRedis(ctx, cfg))
	}
	if cfg.Tasks.AsyncEnabled {
		results = append(results, CheckTaskDatabase(ctx, cfg))
	}
	if cfg.Transport.BaseURL != "" {
		results = append(results, CheckGateway(ctx, cfg.Transport.BaseURL, cfg.Transport.APIKey, cfg.Transport.Instance))
	}
	return results
}
