package tools

import (
	"regexp"
	"strings"

	"docbot/internal/services"
)

type diagnostic struct {
	pattern *regexp.Regexp
	message string
}

func diag(pattern, message string) diagnostic {
	return diagnostic{pattern: regexp.MustCompile("(?i)" + pattern), message: message}
}

var diagnostics = map[services.ToolKind][]diagnostic{
	services.ToolLibreOffice: {
		diag(`Error: source file could not be loaded`, "Source file could not be loaded"),
		diag(`Error: office process died`, "LibreOffice process died unexpectedly"),
		diag(`I/O error: .+`, "I/O error occurred in LibreOffice"),
		diag(`unknown error .+`, "Unknown LibreOffice error"),
		diag(`Error: Unable to connect to .+`, "Unable to connect to LibreOffice service"),
	},
	services.ToolGhostscript: {
		diag(`Error: .*invalidfont.*`, "Invalid font error in document"),
		diag(`Error: .*invalidfileaccess.*in.*`, "Permission denied or cannot access file"),
		diag(`Error: .*limitcheck.*`, "Memory limit exceeded during processing"),
		diag(`Error: .*invalidaccess.*`, "Invalid access error during processing"),
		diag(`Error: .*undefined.*in.*`, "Undefined PDF element encountered"),
		diag(`Error: .*syntaxerror.*`, "Syntax error in PDF document"),
		diag(`Error: .*PDFfile.*`, "Invalid or corrupted PDF file"),
		diag(`Error: .*invalidcontext.*`, "Invalid context in PDF file"),
		diag(`Error: .*typecheck.*`, "Type check error in PDF processing"),
	},
	services.ToolScanner: {
		diag(`Error: no (?:images|pdfs) found`, "No images or PDFs found to process"),
		diag(`FileNotFoundError`, "Scanner could not find the required file"),
		diag(`Original file not found: .*`, "Original file not found for scanning"),
		diag(`Could not open image`, "Could not open image for scanning"),
		diag(`Could not find any pages`, "No pages found in the document"),
		diag(`Failed to create PDF`, "Failed to create PDF from scanned image"),
	},
	services.ToolMarkdown: {
		diag(`Error: Could not find data file`, "Could not find required template or data file"),
		diag(`Error: .*parse error.*`, "Parse error in Markdown document"),
		diag(`Error: .*not found.*`, "Required file not found"),
		diag(`Failed to load .+`, "Failed to load required file"),
	},
}

// Diagnose returns a short description of a tool failure from its stderr.
// Known patterns for the tool win; otherwise the first line mentioning an
// error is returned. Empty stderr yields "".
func Diagnose(tool services.ToolKind, stderr string) string {
	if strings.TrimSpace(stderr) == "" {
		return ""
	}
	for _, d := range diagnostics[tool] {
		if d.pattern.MatchString(stderr) {
			return d.message
		}
	}
	for _, line := range strings.Split(stderr, "\n") {
		if strings.Contains(strings.ToLower(line), "error") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
