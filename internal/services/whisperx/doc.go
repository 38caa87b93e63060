// Package whisperx runs local WhisperX transcription through uvx.
//
// The service invokes `uvx whisperx` with JSON output, then loads the
// sentence-level segments into a transcript.Transcript. Command execution is
// injectable so tests never spawn Python.
//
// Failures are reported with the services markers: a missing uvx binary or a
// non-zero exit is ErrUnavailable, a context deadline is ErrTimeout. Both are
// transient, and the pipeline's retry policy decides what happens next.
package whisperx
