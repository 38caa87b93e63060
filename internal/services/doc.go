// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp recording identities, stage names, device
//     identities, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, so converter, transcriber,
//     and note store failures classify consistently as transient or permanent.
//
// Integrations live in subpackages (ffmpeg, whisperx, asr) and report errors
// through these markers.
package services
