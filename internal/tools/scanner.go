package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/fileutil"
)

// ScanVersion names one rendition produced for every scanned image.
type ScanVersion struct {
	Name   string
	Suffix string
}

// ScanVersions lists the renditions in delivery order. The original image has
// an empty suffix.
var ScanVersions = []ScanVersion{
	{Name: "original", Suffix: ""},
	{Name: "bw", Suffix: "_BW"},
	{Name: "bw_direct", Suffix: "_BW_direct"},
}

// VersionPath returns where the scanner writes version for image in dir.
func VersionPath(dir, image string, version ScanVersion) string {
	base := filepath.Base(image)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+version.Suffix+ext)
}

// Scanner runs the document scanner command on single images.
type Scanner struct {
	binary string
	runner *Runner
}

// NewScanner constructs the scanner wrapper.
func NewScanner(binary string, runner *Runner) *Scanner {
	if binary == "" {
		binary = "docscan"
	}
	return &Scanner{binary: binary, runner: runner}
}

// Scan processes image into outDir and returns the version name to file name
// map of renditions that exist afterwards. Missing renditions are omitted.
func (s *Scanner) Scan(ctx context.Context, image, outDir string) (map[string]string, error) {
	if !fileutil.Exists(image) {
		return nil, fmt.Errorf("scan input missing: %s", image)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if _, err := s.runner.Run(ctx, Command{
		Binary: s.binary,
		Args:   []string{"--image", image, "--output", outDir},
	}); err != nil {
		return nil, err
	}

	versions := make(map[string]string, len(ScanVersions))
	for _, version := range ScanVersions {
		dir := outDir
		if version.Suffix == "" {
			dir = filepath.Dir(image)
		}
		path := VersionPath(dir, image, version)
		if fileutil.Exists(path) {
			versions[version.Name] = filepath.Base(path)
		}
	}
	return versions, nil
}
