package compress

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"docbot/internal/fileutil"
)

// Outcome summarizes a finished compression.
type Outcome struct {
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Reduction      float64 `json:"reduction"`
	UsedOriginal   bool    `json:"used_original"`
}

// Finish enforces the never-larger rule on a compressor output: when output is
// missing, empty, or not smaller than input, the original bytes are copied over
// output and a zero reduction is reported.
func Finish(input, output string) (Outcome, error) {
	original, err := fileutil.Size(input)
	if err != nil {
		return Outcome{}, fmt.Errorf("stat original: %w", err)
	}
	compressed, err := fileutil.Size(output)
	if err != nil || compressed == 0 || compressed >= original {
		if err := fileutil.CopyFile(input, output); err != nil {
			return Outcome{}, fmt.Errorf("restore original: %w", err)
		}
		return Outcome{OriginalSize: original, CompressedSize: original, UsedOriginal: true}, nil
	}
	return Outcome{
		OriginalSize:   original,
		CompressedSize: compressed,
		Reduction:      float64(original-compressed) / float64(original) * 100,
	}, nil
}

// Summary renders the user-facing size report for an outcome.
func (o Outcome) Summary() string {
	line := fmt.Sprintf("Original: %s → Compressed: %s ", FormatSize(o.OriginalSize), FormatSize(o.CompressedSize))
	if o.UsedOriginal {
		return line + "(No size reduction - using original file)"
	}
	return line + fmt.Sprintf("(%.1f%% reduction)", o.Reduction)
}

// FormatSize renders a byte count for chat messages.
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}

// OptionsMessage is the menu shown after a PDF arrives, with the expected size per level.
func OptionsMessage(size int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PDF received - Original size: %s\n\nChoose compression level (reply with option number):\n", FormatSize(size))
	for i, p := range presets {
		expected := int64(float64(size) * (1 - float64(p.ExpectedReduction)/100))
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, p.Level, p.Description)
		fmt.Fprintf(&b, "   Expected: %s (%d%% reduction)\n", FormatSize(expected), p.ExpectedReduction)
	}
	b.WriteString("\nReply with 1, 2, 3, or 4 to select compression level (or 'auto')")
	return b.String()
}
