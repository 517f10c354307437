// Package services defines shared utilities consumed by the workflow manager,
// the task workers, and the external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sender IDs, workflow task IDs, workflow kinds,
//     and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and the typed error family
//     (state, workflow, file, external tool, API) that callers inspect with
//     errors.Is and errors.As.
//   - Kind and Retryable classifiers used for metrics labels and task retries.
package services
