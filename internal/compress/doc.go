// Package compress owns the compression level ladder shared by the compress
// workflow and the Ghostscript wrapper: named presets with their resolution,
// JPEG quality, and PDFSETTINGS profile; numeric menu aliases; size based auto
// selection; and the rule that a compressed deliverable is never larger than
// its source.
package compress
