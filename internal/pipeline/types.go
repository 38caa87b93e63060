package pipeline

import (
	"context"

	"pendant/internal/notes"
	"pendant/internal/scanner"
	"pendant/internal/transcript"
	"pendant/internal/watcher"
)

// Stage names used in logs and error details.
const (
	StageStability     = "stability"
	StageConversion    = "conversion"
	StageTranscription = "transcription"
	StageNote          = "note"
)

// Converter produces an MP3 from a source recording.
type Converter interface {
	Convert(ctx context.Context, src string) (string, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcript.Transcript, error)
}

// NoteStore writes notes into the vault.
type NoteStore interface {
	CreateNote(ctx context.Context, note notes.Note) (notes.NoteRef, error)
}

// Job carries one recording through the stages.
type Job struct {
	Candidate           scanner.Candidate
	Volume              watcher.Volume
	RequestID           string
	ConvertedPath       string
	Transcript          transcript.Transcript
	TranscriptAvailable bool
	NotePath            string
}

// OutcomeKind is the terminal result of Process.
type OutcomeKind string

const (
	OutcomeDone            OutcomeKind = "done"
	OutcomeFailedPermanent OutcomeKind = "failed_permanent"
	OutcomeTransient       OutcomeKind = "transient"
	OutcomeAbandoned       OutcomeKind = "abandoned"
)

// Outcome reports how a job ended.
type Outcome struct {
	Kind   OutcomeKind
	Stage  string
	Reason string
	Err    error
	Job    Job
}
