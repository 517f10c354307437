// Package tasks is the background execution substrate for slow document
// operations.
//
// Jobs live in a SQLite database shared by the serve process and any number of
// worker processes. Workers publish heartbeats into the same database, which
// lets the Dispatcher decide per submission whether a background worker is
// actually alive: when one is, operations are enqueued and the caller receives
// a Handle; otherwise the operation runs inline through the same Registry and
// the caller receives the result directly. Poller exposes status checks and
// bounded waiting over handles.
package tasks
