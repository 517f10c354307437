// Package workflow runs the per-sender conversations that drive document
// processing.
//
// Each conversation belongs to one workflow kind (merge, split, scan,
// compress, office to PDF, markdown to PDF). A Definition supplies the
// onboarding text and constructors for its kind; the immutable Registry maps
// start commands and persisted kind tags to definitions. The Manager routes
// inbound chat messages: it loads the sender's state from the state store,
// hands files and commands to the workflow, persists the payload after every
// turn, and on completion finalizes, delivers outputs, archives the task
// directory and deletes the state.
//
// Long operations go through the task dispatcher. Workflows record the
// resulting handles in a Tracker persisted with their payload so status
// checks, cancellation and the finalize-time wait survive restarts. Results
// are applied to the payload exactly once.
package workflow
