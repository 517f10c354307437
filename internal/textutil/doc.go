// Package textutil provides small text helpers shared by the workflows:
// filesystem-safe names for sender directories and user supplied filenames,
// and pluralization for user-facing counts.
package textutil
