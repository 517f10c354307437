package workflow

import (
	"fmt"
	"strings"
)

// statusReport renders the progress of every tracked task.
func statusReport(title string, tracker *Tracker, label func(*TrackedTask) string, allDone string) string {
	if len(tracker.Tasks) == 0 {
		return "No background tasks are in progress."
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for _, task := range tracker.Tasks {
		state := string(task.Status)
		switch {
		case task.Succeeded():
			state = "COMPLETE"
		case task.Failed():
			state = "FAILED"
		case task.HandleID == "":
			state = "QUEUED"
		}
		fmt.Fprintf(&b, "- %s: %s\n", label(task), state)
	}
	complete, pending, failed := tracker.Counts()
	fmt.Fprintf(&b, "\nSummary: %d complete, %d pending, %d failed", complete, pending, failed)
	if pending == 0 {
		b.WriteString("\n\n")
		b.WriteString(allDone)
	}
	return b.String()
}

func cancelReply(n int, noun string) string {
	if n == 0 {
		return "Nothing is running in the background."
	}
	return fmt.Sprintf("Stopped waiting on %d %s(s). They will be processed when you send 'done'.", n, noun)
}
