// Package logging assembles structured slog loggers and formatting helpers used
// across pendant.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code tags log lines
// with the recording identity, the source device, and the active stage.
// NewNop provides a silent logger for tests and wiring code.
package logging
