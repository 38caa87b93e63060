// Package ffmpeg converts recorder WAV files to MP3.
//
// Conversion is where input problems surface, so the converter is also the
// component that decides whether a failure is permanent. It reports
// services.ErrCorruptInput or services.ErrCodecUnsupported only on positive
// evidence (a bad RIFF header, or ffmpeg's own decode diagnostics). A full
// disk is services.ErrStorageExhausted, detected before the run through
// statfs and after it through ENOSPC. Anything else is a transient
// services.ErrExternalTool.
package ffmpeg
