// Package language normalizes the configured transcription language into the
// forms the transcription providers expect.
//
// WhisperX and the whisper-asr webservice both take ISO 639-1 codes, while
// users write anything from "en" to "english" to "pt-BR". Known codes resolve
// through a small table; everything else goes through BCP 47 parsing.
package language
