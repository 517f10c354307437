package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"docbot/internal/config"
)

// Requirement defines an external dependency docbot relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// markdownBinaries maps markdown backend names to the executable they run.
var markdownBinaries = map[string]string{
	"md-to-pdf":   "md-to-pdf",
	"md2pdf":      "md2pdf",
	"pandoc":      "pandoc",
	"wkhtmltopdf": "wkhtmltopdf",
}

// Requirements lists the converters configured in cfg. Markdown backends are
// optional individually; MarkdownAvailable checks that at least one exists.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "Ghostscript", Command: cfg.Tools.Ghostscript, Description: "PDF compression"},
		{Name: "LibreOffice", Command: cfg.Tools.LibreOffice, Description: "Word, PowerPoint and Excel conversion"},
		{Name: "Scanner", Command: cfg.Tools.Scanner, Description: "Document scan enhancement"},
	}
	if cfg.Tools.XvfbRun != "" {
		reqs = append(reqs, Requirement{
			Name:        "xvfb-run",
			Command:     cfg.Tools.XvfbRun,
			Description: "Virtual display fallback for LibreOffice",
			Optional:    true,
		})
	}
	for _, backend := range cfg.Tools.MarkdownBackends {
		binary, ok := markdownBinaries[backend]
		if !ok {
			continue
		}
		reqs = append(reqs, Requirement{
			Name:        "Markdown (" + backend + ")",
			Command:     binary,
			Description: "Markdown to PDF backend",
			Optional:    true,
		})
	}
	return reqs
}

// MarkdownAvailable reports whether any markdown backend in statuses resolved.
func MarkdownAvailable(statuses []Status) bool {
	for _, status := range statuses {
		if strings.HasPrefix(status.Name, "Markdown (") && status.Available {
			return true
		}
	}
	return false
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Command = resolved
		results = append(results, status)
	}
	return results
}
