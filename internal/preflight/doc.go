// Package preflight provides readiness checks for the vault, local state
// directories, external binaries, and the transcription service.
//
// These checks run in two contexts:
//   - "pendant status" prints every check together with the recorders that
//     are currently attached.
//   - pendantd logs a dependency snapshot at startup so a missing ffmpeg or
//     unreachable vault is visible before the first recording arrives.
//
// Each check is gated by its config toggle; a disabled provider is skipped.
package preflight
