// Package statestore persists per-sender conversation state.
//
// A Record is written under "{prefix}workflow:{sender}" as JSON with a sliding
// expiry refreshed on every save and load. Redis is the durable backend;
// Memory serves tests, dry runs and the degraded mode entered when Redis is
// unreachable. Failures surface as *services.StateManagementError so callers
// can tell them apart from workflow errors.
package statestore
