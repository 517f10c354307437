// Package config loads, normalizes, and validates docbot configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DOCBOT_REDIS_PASSWORD and DOCBOT_TRANSPORT_API_KEY. The Config type
// centralizes every knob the daemon, the task workers, and the CLI need so the
// download directory, state backend, and external converter settings are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
