package workflow

import "fmt"

// Definitions returns the built-in workflow kinds in menu order.
func Definitions() []Definition {
	return []Definition{
		{
			Kind:         KindMerge,
			StartCommand: "merge pdf",
			Instructions: "Started PDF Merge. Send PDFs one by one.\nReply to a PDF with just a number (e.g., '1') to change order.\nSend 'done' when finished.",
			Empty:        "No PDFs received for merge.",
			Failure:      "Failed to merge PDFs.",
			Completion:   fixedText("PDF merge completed."),
			Start:        func(base Base, env *Env) Workflow { return newMerge(base, env, mergePayload{}) },
			Restore:      restoreInto(newMerge),
		},
		{
			Kind:         KindSplit,
			StartCommand: "split pdf",
			Instructions: "Started PDF Split. Send the PDF file to split.\nThen, *reply to that PDF message* with page ranges (e.g., '1-10', '15', '20-25', one per line or comma-separated). Add 'rest' to also receive the remaining pages.",
			Empty:        "No pages were exported.",
			Failure:      "Failed to process PDF split request",
			Completion:   func(sent int) string { return fmt.Sprintf("Split complete: %d parts sent", sent) },
			Start:        func(base Base, env *Env) Workflow { return newSplit(base, env, splitPayload{}) },
			Restore:      restoreInto(newSplit),
		},
		{
			Kind:         KindScan,
			StartCommand: "scan document",
			Instructions: "Started Document Scan. Send images one by one.\nReply to an image with a number to change order.\nSend 'done' when finished.",
			Processing:   "Processing images... This may take a moment.",
			Empty:        "No images received for scanning.",
			Failure:      "Failed to create PDFs from images.",
			Completion:   fixedText("Scan workflow completed. All versions sent."),
			Start:        func(base Base, env *Env) Workflow { return newScan(base, env, scanPayload{}) },
			Restore:      restoreInto(newScan),
		},
		officeDefinition(wordProfile, "word to pdf",
			"Started Word to PDF conversion. Send your Word documents (.doc or .docx) one by one.\nSend 'done' when you've sent all documents to convert."),
		officeDefinition(powerPointProfile, "powerpoint to pdf",
			"Started PowerPoint to PDF conversion. Send your PowerPoint presentations (.ppt, .pptx, .pps, or .ppsx) one by one.\nSend 'done' when you've sent all presentations to convert."),
		officeDefinition(excelProfile, "excel to pdf",
			"Started Excel to PDF conversion. Send your Excel spreadsheets (.xls, .xlsx, .xlsm, .xlsb, or .csv) one by one.\nSend 'done' when you've sent all spreadsheets to convert."),
		{
			Kind:         KindCompress,
			StartCommand: "compress pdf",
			Instructions: "Started PDF Compression. Send your PDF files one by one, and I'll help you compress them to reduce file size while maintaining quality.\nFor each PDF, you can choose compression level: 'low', 'medium', 'high', 'max', or 'auto'.\nSend 'done' when you've sent all PDFs to compress.",
			Processing:   "Processing PDFs for compression... This may take a moment.",
			Empty:        "No PDFs were compressed.",
			Failure:      "Failed to compress PDFs.",
			Completion:   fixedText("PDF compression completed."),
			Start:        func(base Base, env *Env) Workflow { return newCompress(base, env, compressPayload{}) },
			Restore:      restoreInto(newCompress),
		},
		{
			Kind:         KindMarkdownToPDF,
			StartCommand: "markdown to pdf",
			Instructions: "Started Markdown to PDF conversion. Send your markdown text messages one by one. All messages will be combined in sequence.\nUse standard markdown formatting (# for headings, ** for bold, etc.).\nSend 'done' when you've finished sending all markdown text.",
			Processing:   "Converting markdown to PDF... This may take a moment.",
			Empty:        "No markdown content received.",
			Failure:      "Failed to convert markdown to PDF.",
			Completion:   fixedText("Markdown to PDF conversion completed."),
			Start:        func(base Base, env *Env) Workflow { return newMarkdown(base, env, markdownPayload{}) },
			Restore:      restoreInto(newMarkdown),
		},
	}
}

func officeDefinition(profile officeProfile, command, instructions string) Definition {
	build := officeBuilder(profile)
	return Definition{
		Kind:         profile.kind,
		StartCommand: command,
		Instructions: instructions,
		Processing:   fmt.Sprintf("Processing %s %s... This may take a moment.", profile.label, profile.plural),
		Empty:        fmt.Sprintf("No %s %s were converted to PDF.", profile.label, profile.plural),
		Failure:      fmt.Sprintf("Failed to convert %s %s.", profile.label, profile.plural),
		Completion:   fixedText(fmt.Sprintf("%s to PDF conversion completed.", profile.label)),
		Start:        func(base Base, env *Env) Workflow { return build(base, env, officePayload{}) },
		Restore:      restoreInto(build),
	}
}

// DefaultRegistry returns a registry holding every built-in kind.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(Definitions()...)
	if err != nil {
		panic(err)
	}
	return registry
}
