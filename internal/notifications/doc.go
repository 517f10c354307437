// Package notifications delivers operator alerts via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Alerts cover the events an operator has to act on: workflows that
// failed to produce output and a state store that fell back to memory. Users
// are never notified here; their replies go through the chat transport.
package notifications
