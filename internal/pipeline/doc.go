// Package pipeline turns one stable recording into a vault note.
//
// Process runs stability confirmation, conversion, transcription, and note
// emission in order and reports a single Outcome. Only the stability check
// observes the caller's context; once a recording is confirmed stable the
// remaining stages run to completion even if the volume is detached.
// Transcription failures never fail a recording: after the retry budget is
// spent the note is written with placeholder text.
package pipeline
