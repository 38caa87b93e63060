// Package config loads, normalizes, and validates pendant configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PENDANT_VAULT_DIR and PENDANT_TRANSCRIPTION_API_KEY. The Config type
// centralizes every knob the daemon and CLI need, so the vault location, the
// recorder folder name, and transcription credentials are discovered in one
// pass and read once per process.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enums, and clear validation errors.
package config
