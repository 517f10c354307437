package workflow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind is the canonical tag persisted with a conversation's state.
type Kind string

const (
	KindMerge           Kind = "merge"
	KindSplit           Kind = "split"
	KindScan            Kind = "scan"
	KindCompress        Kind = "compress"
	KindWordToPDF       Kind = "word_to_pdf"
	KindPowerPointToPDF Kind = "powerpoint_to_pdf"
	KindExcelToPDF      Kind = "excel_to_pdf"
	KindMarkdownToPDF   Kind = "markdown_to_pdf"
)

var titleCaser = cases.Title(language.English)

// DisplayName renders the kind for operators, e.g. "Word To Pdf".
func (k Kind) DisplayName() string {
	return titleCaser.String(strings.ReplaceAll(string(k), "_", " "))
}

// Phase is the position of a conversation in its state machine.
type Phase string

const (
	PhaseStarted         Phase = "started"
	PhaseReceivingInput  Phase = "receiving_input"
	PhaseAwaitingCommand Phase = "awaiting_command"
	PhaseProcessingAsync Phase = "processing_async"
	PhaseFinalizing      Phase = "finalizing"
)

// phaseFor derives the resting phase after a turn.
func phaseFor(hasInput bool, tracker *Tracker) Phase {
	switch {
	case tracker != nil && len(tracker.Outstanding()) > 0:
		return PhaseProcessingAsync
	case hasInput:
		return PhaseAwaitingCommand
	default:
		return PhaseReceivingInput
	}
}
