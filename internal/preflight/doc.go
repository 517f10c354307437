// Package preflight provides readiness checks for the services and
// filesystem paths docbot depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check. Failures
//     degrade the service (memory state, inline tasks) rather than stop it.
//   - The CLI "docbot doctor" command renders the same results as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
