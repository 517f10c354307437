package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"docbot/internal/config"
	"docbot/internal/deps"
	"docbot/internal/statestore"
	"docbot/internal/tasks"
)

// CheckGateway verifies that the messaging gateway answers for the instance
// and accepts the API key.
func CheckGateway(ctx context.Context, baseURL, apiKey, instance string) Result {
	const name = "Messaging gateway"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "missing api key"}
	}
	if strings.TrimSpace(instance) == "" {
		return Result{Name: name, Detail: "missing instance"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	target := base + "/instance/connectionState/" + url.PathEscape(strings.TrimSpace(instance))
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	req.Header.Set("apikey", strings.TrimSpace(apiKey))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case http.StatusNotFound:
		return Result{Name: name, Detail: fmt.Sprintf("instance %q not found", instance)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CheckRedis pings the configured Redis state store.
func CheckRedis(ctx context.Context, cfg *config.Config) Result {
	const name = "Redis state store"

	store := statestore.NewRedis(statestore.RedisOptions{
		Addr:     cfg.State.RedisAddr,
		Password: cfg.State.RedisPassword,
		DB:       cfg.State.RedisDB,
		Prefix:   cfg.State.Prefix,
		TTL:      cfg.StateTTL(),
		Timeout:  time.Duration(cfg.State.TimeoutSeconds) * time.Second,
	})
	defer store.Close()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", cfg.State.RedisAddr, summarizeNetError(err))}
	}
	return Result{Name: name, Passed: true, Detail: cfg.State.RedisAddr}
}

// CheckTaskDatabase opens the task database and reports live workers.
func CheckTaskDatabase(ctx context.Context, cfg *config.Config) Result {
	const name = "Task database"

	store, err := tasks.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Tasks.DBPath, err)}
	}
	defer store.Close()

	cutoff := time.Now().Add(-time.Duration(cfg.Tasks.WorkerTimeoutSeconds) * time.Second)
	summary, err := store.Summarize(ctx, cutoff)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Tasks.DBPath, err)}
	}
	detail := fmt.Sprintf("%s (%d outstanding, %d live workers)", cfg.Tasks.DBPath, summary.Outstanding, summary.LiveWorkers)
	if summary.LiveWorkers == 0 {
		detail += "; operations run inline"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the converter binaries for the given config. Both
// the daemon and the doctor command use it so the requirement list lives in
// one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable: " + opErr.Err.Error()
	}
	return err.Error()
}
