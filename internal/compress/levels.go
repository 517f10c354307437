package compress

import (
	"fmt"
	"strings"
)

// Level names a compression preset.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelMax    Level = "max"
	LevelAuto   Level = "auto"
)

// DefaultLevel is applied to files the user never chose a level for.
const DefaultLevel = LevelMedium

// Preset is the Ghostscript parameter triple for a level.
type Preset struct {
	Level             Level
	DPI               int
	JPEGQuality       int
	PDFSettings       string
	Description       string
	ExpectedReduction int
}

var presets = []Preset{
	{Level: LevelLow, DPI: 150, JPEGQuality: 90, PDFSettings: "/printer",
		Description: "Low compression (best quality, minor size reduction)", ExpectedReduction: 20},
	{Level: LevelMedium, DPI: 120, JPEGQuality: 80, PDFSettings: "/ebook",
		Description: "Medium compression (good quality, moderate size reduction)", ExpectedReduction: 40},
	{Level: LevelHigh, DPI: 96, JPEGQuality: 70, PDFSettings: "/screen",
		Description: "High compression (adequate quality, significant size reduction)", ExpectedReduction: 60},
	{Level: LevelMax, DPI: 72, JPEGQuality: 60, PDFSettings: "/ebook",
		Description: "Maximum compression (lower quality, maximum size reduction)", ExpectedReduction: 75},
}

// Presets returns the ladder in menu order (option 1 first).
func Presets() []Preset {
	return append([]Preset(nil), presets...)
}

// Lookup returns the preset for a concrete level.
func Lookup(level Level) (Preset, bool) {
	for _, p := range presets {
		if p.Level == level {
			return p, true
		}
	}
	return Preset{}, false
}

// ParseLevel accepts a menu number ("1"-"4"), a level name, or "auto".
func ParseLevel(text string) (Level, error) {
	value := strings.ToLower(strings.TrimSpace(text))
	if value == string(LevelAuto) {
		return LevelAuto, nil
	}
	for i, p := range presets {
		if value == string(p.Level) || value == fmt.Sprint(i+1) {
			return p.Level, nil
		}
	}
	return "", fmt.Errorf("Invalid compression level '%s'. Choose one of: %s", strings.TrimSpace(text), optionList())
}

// IsLevel reports whether text selects a compression level.
func IsLevel(text string) bool {
	_, err := ParseLevel(text)
	return err == nil
}

func optionList() string {
	parts := make([]string, 0, len(presets)+1)
	for i, p := range presets {
		parts = append(parts, fmt.Sprintf("%d (%s)", i+1, p.Level))
	}
	parts = append(parts, "auto")
	return strings.Join(parts, ", ")
}

// Thresholds are the upper bounds, in bytes, used by the auto level.
type Thresholds struct {
	LowBelow    int64
	MediumBelow int64
	HighBelow   int64
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{LowBelow: 1 << 20, MediumBelow: 5 << 20, HighBelow: 20 << 20}
}

// ThresholdsFromKB builds thresholds from kilobyte configuration values.
func ThresholdsFromKB(low, medium, high int64) Thresholds {
	return Thresholds{LowBelow: low * 1024, MediumBelow: medium * 1024, HighBelow: high * 1024}
}

// Select picks the level auto mode applies to a file of size bytes.
func (t Thresholds) Select(size int64) Level {
	switch {
	case size < t.LowBelow:
		return LevelLow
	case size < t.MediumBelow:
		return LevelMedium
	case size < t.HighBelow:
		return LevelHigh
	default:
		return LevelMax
	}
}

// Resolve maps level (possibly auto) to a concrete preset for a file of size bytes.
func (t Thresholds) Resolve(level Level, size int64) Preset {
	if level == LevelAuto || level == "" {
		level = t.Select(size)
	}
	p, ok := Lookup(level)
	if !ok {
		p, _ = Lookup(DefaultLevel)
	}
	return p
}
