package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/fileutil"
	"docbot/internal/logging"
)

// MediaDirName is the per-sender directory collecting archived files.
const MediaDirName = "All-Media"

// Delivered is an output file that was sent to the user.
type Delivered struct {
	Path   string
	SentID string
}

// Result reports what Archive moved and what failed.
type Result struct {
	Moved    []string
	Mirrored []string
	Errors   []CleanupError
}

// CleanupError pairs a path with the error encountered for it.
type CleanupError struct {
	Path  string
	Error error
}

// Mirror uploads an archived file under key.
type Mirror interface {
	Upload(ctx context.Context, key, path string) error
}

// Archiver archives finished task directories.
type Archiver struct {
	mirror Mirror
	logger *slog.Logger
}

// New constructs an Archiver. mirror may be nil.
func New(mirror Mirror, logger *slog.Logger) *Archiver {
	return &Archiver{mirror: mirror, logger: logging.NewComponentLogger(logger, "archive")}
}

// Archive moves inputs (names relative to taskDir, or absolute paths) to
// <sender_dir>/All-Media/<name>, prefixed with the task id when that name is
// already archived, and every delivered output carrying a sent id
// to All-Media/<sent_id><ext>, then removes taskDir. Failures are collected in
// the result and never abort the remaining moves.
func (a *Archiver) Archive(ctx context.Context, taskDir string, inputs []string, delivered []Delivered) Result {
	var result Result
	taskDir = strings.TrimSpace(taskDir)
	if taskDir == "" {
		return result
	}
	logger := logging.WithContext(ctx, a.logger)
	senderDir := filepath.Dir(taskDir)
	mediaDir := filepath.Join(senderDir, MediaDirName)
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: mediaDir, Error: err})
		logger.Warn("create media directory failed",
			logging.String("path", mediaDir),
			logging.Error(err),
			logging.String(logging.FieldEventType, "archive_failed"),
			logging.String(logging.FieldErrorHint, "check download_base_dir permissions"),
		)
		return result
	}

	for _, name := range inputs {
		src := name
		if !filepath.IsAbs(src) {
			src = filepath.Join(taskDir, name)
		}
		if !fileutil.Exists(src) {
			continue
		}
		dst := filepath.Join(mediaDir, filepath.Base(src))
		if fileutil.Exists(dst) {
			dst = filepath.Join(mediaDir, filepath.Base(taskDir)+"_"+filepath.Base(src))
		}
		a.move(&result, src, dst)
	}

	for _, out := range delivered {
		if out.SentID == "" || !fileutil.Exists(out.Path) {
			continue
		}
		ext := filepath.Ext(out.Path)
		if ext == "" {
			ext = ".pdf"
		}
		dst := filepath.Join(mediaDir, out.SentID+ext)
		if !a.move(&result, out.Path, dst) {
			continue
		}
		if a.mirror != nil {
			key := filepath.Base(senderDir) + "/" + out.SentID + ext
			if err := a.mirror.Upload(ctx, key, dst); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dst, Error: fmt.Errorf("mirror: %w", err)})
				logger.Warn("blob mirror upload failed",
					logging.String("key", key),
					logging.Error(err),
					logging.String(logging.FieldEventType, "archive_mirror_failed"),
					logging.String(logging.FieldErrorHint, "check archive.azure_connection_string"),
					logging.String(logging.FieldImpact, "output kept locally only"),
				)
			} else {
				result.Mirrored = append(result.Mirrored, key)
			}
		}
	}

	if err := os.RemoveAll(taskDir); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: taskDir, Error: err})
	}
	logger.Info("task archived",
		logging.Int("moved", len(result.Moved)),
		logging.Int("mirrored", len(result.Mirrored)),
		logging.Int("errors", len(result.Errors)),
	)
	return result
}

func (a *Archiver) move(result *Result, src, dst string) bool {
	if err := fileutil.MoveFile(src, dst); err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: src, Error: err})
		a.logger.Warn("archive move failed",
			logging.String("path", src),
			logging.Error(err),
			logging.String(logging.FieldEventType, "archive_move_failed"),
			logging.String(logging.FieldErrorHint, "check download_base_dir permissions"),
		)
		return false
	}
	result.Moved = append(result.Moved, dst)
	return true
}
