// Package tools wraps the external converters docbot shells out to
// (Ghostscript, LibreOffice, the markdown backends, the document scanner) and
// the in-process pdfcpu page operations.
//
// Every subprocess goes through a Runner, which applies the tool timeout and
// maps failures onto the services ExternalToolError family. Stderr is matched
// against a per-tool diagnostics table so user-facing messages stay short
// while logs keep the full output.
package tools
