// Package daemon coordinates the long-running docbot process.
//
// It wires the workflow manager, the optional in-process task worker and the
// HTTP listener into a single lifecycle with flock-based locking to prevent
// multiple instances. Inbound webhook messages are queued and handed to the
// manager one at a time by a single loop; the daemon also runs the periodic
// stale task directory cleanup and reports runtime status.
//
// Keep orchestration logic here: conversation handling lives in the workflow
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
