package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docbot/internal/logging"
)

// CleanResult contains the outcome of a stale directory cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanStale removes task directories (<baseDir>/<sender>/<task>) older than
// maxAge that no active conversation references. All-Media directories are
// never touched. active holds task directory paths.
func CleanStale(ctx context.Context, baseDir string, maxAge time.Duration, active map[string]struct{}, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	dirs, err := ListTaskDirs(baseDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: baseDir, Error: err})
		return result
	}
	cutoff := time.Now().Add(-maxAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if _, ok := active[filepath.Clean(dir.Path)]; ok {
			continue
		}
		if !dir.ModTime.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale task directory",
					logging.String("path", dir.Path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "task_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check download_base_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		if logger != nil {
			logger.Info("removed stale task directory",
				logging.String("path", dir.Path),
				logging.Duration("age", time.Since(dir.ModTime)),
				logging.String(logging.FieldEventType, "task_cleanup"),
			)
		}
	}
	return result
}

// DirInfo describes one task directory.
type DirInfo struct {
	Sender  string
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListTaskDirs returns every task directory below baseDir.
func ListTaskDirs(baseDir string) ([]DirInfo, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return nil, nil
	}
	senders, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []DirInfo
	for _, sender := range senders {
		if !sender.IsDir() {
			continue
		}
		senderPath := filepath.Join(baseDir, sender.Name())
		entries, err := os.ReadDir(senderPath)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == MediaDirName {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(senderPath, entry.Name())
			size, _ := dirSize(path)
			dirs = append(dirs, DirInfo{
				Sender:  sender.Name(),
				Name:    entry.Name(),
				Path:    path,
				ModTime: info.ModTime(),
				Size:    size,
			})
		}
	}
	return dirs, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
