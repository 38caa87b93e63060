package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"pendant/internal/logging"
	"pendant/internal/notes"
	"pendant/internal/scanner"
	"pendant/internal/services"
	"pendant/internal/transcript"
)

// Options wires a Pipeline.
type Options struct {
	Converter   Converter
	Transcriber Transcriber
	Notes       NoteStore
	Retry       RetryPolicy

	ConversionTimeout    time.Duration
	TranscriptionTimeout time.Duration

	DeleteSource bool
	KeepMP3      bool
	Logger       *slog.Logger
}

// Pipeline processes recordings one job at a time. It is safe for concurrent
// use when its collaborators are.
type Pipeline struct {
	converter   Converter
	transcriber Transcriber
	notes       NoteStore
	retry       RetryPolicy

	conversionTimeout    time.Duration
	transcriptionTimeout time.Duration

	deleteSource bool
	keepMP3      bool
	logger       *slog.Logger
}

// New constructs a Pipeline. A nil Transcriber always yields placeholder notes.
func New(opts Options) *Pipeline {
	retry := opts.Retry
	if retry.Attempts < 1 {
		retry.Attempts = 3
	}
	return &Pipeline{
		converter:            opts.Converter,
		transcriber:          opts.Transcriber,
		notes:                opts.Notes,
		retry:                retry,
		conversionTimeout:    opts.ConversionTimeout,
		transcriptionTimeout: opts.TranscriptionTimeout,
		deleteSource:         opts.DeleteSource,
		keepMP3:              opts.KeepMP3,
		logger:               logging.NewComponentLogger(opts.Logger, "pipeline"),
	}
}

// Process runs every stage for job. It never panics and never returns an
// error; the Outcome says what the ledger should record.
func (p *Pipeline) Process(ctx context.Context, job Job) (out Outcome) {
	if job.RequestID == "" {
		job.RequestID = uuid.NewString()
	}
	ctx = services.WithIdentity(ctx, job.Candidate.Identity)
	ctx = services.WithDevice(ctx, job.Volume.DeviceID)
	ctx = services.WithRequestID(ctx, job.RequestID)
	logger := logging.WithContext(ctx, p.logger).With(logging.String("file", job.Candidate.Name))

	stage := StageStability
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s stage: %v", stage, r)
			logger.Error("recording processing panicked",
				logging.String(logging.FieldStage, stage),
				logging.Error(err),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "pipeline_panic"),
			)
			p.removeTemp(logger, job.ConvertedPath)
			out = Outcome{Kind: OutcomeTransient, Stage: stage, Reason: err.Error(), Err: err, Job: job}
		}
		p.logOutcome(logger, out)
	}()

	logger.Debug("processing recording",
		logging.String(logging.FieldEventType, "job_started"),
		logging.String("source_path", job.Candidate.Path),
		logging.Bytes("size_bytes", job.Candidate.Size),
	)

	if reason, ok := p.confirmStable(ctx, job); !ok {
		return Outcome{Kind: OutcomeAbandoned, Stage: StageStability, Reason: reason, Job: job}
	}

	// From here on a detach must not interrupt the recording half way.
	work := context.WithoutCancel(ctx)

	stage = StageConversion
	mp3, err := p.convert(work, job.Candidate.Path)
	if err != nil {
		kind := OutcomeTransient
		if services.Classify(err) == services.ClassPermanent {
			kind = OutcomeFailedPermanent
		}
		return Outcome{Kind: kind, Stage: stage, Reason: services.FailureReason(err), Err: err, Job: job}
	}
	job.ConvertedPath = mp3

	stage = StageTranscription
	job.Transcript = p.transcribe(work, logger, mp3)
	job.TranscriptAvailable = !job.Transcript.Placeholder

	stage = StageNote
	title, recordedAt := notes.TitleFor(job.Candidate.Name, job.Candidate.ModTime)
	ref, err := p.notes.CreateNote(services.WithStage(work, StageNote), notes.Note{
		Title:       title,
		Identity:    job.Candidate.Identity,
		Body:        job.Transcript.Text,
		Segments:    job.Transcript.Segments,
		AudioPath:   mp3,
		RecordedAt:  recordedAt,
		Placeholder: job.Transcript.Placeholder,
	})
	if err != nil {
		p.removeTemp(logger, mp3)
		return Outcome{Kind: OutcomeTransient, Stage: stage, Reason: services.FailureReason(err), Err: err, Job: job}
	}
	job.NotePath = ref.Path

	if !p.keepMP3 {
		p.removeTemp(logger, mp3)
	}
	if p.deleteSource {
		if err := os.Remove(job.Candidate.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "source recording not deleted", "source_delete_failed",
				logging.String("source_path", job.Candidate.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the recorder volume is writable"),
				logging.String(logging.FieldImpact, "the note exists; the WAV stays on the recorder"),
			)
		}
	}

	return Outcome{Kind: OutcomeDone, Stage: StageNote, Job: job}
}

func (p *Pipeline) confirmStable(ctx context.Context, job Job) (string, bool) {
	if err := ctx.Err(); err != nil {
		return "volume detached before processing", false
	}
	current, err := scanner.Observe(job.Candidate.Path)
	if err != nil {
		return "recording vanished: " + err.Error(), false
	}
	if !scanner.Stable(job.Candidate.Observation(), current) {
		return "recording changed since scan", false
	}
	if err := ctx.Err(); err != nil {
		return "volume detached during stability check", false
	}
	return "", true
}

func (p *Pipeline) convert(ctx context.Context, src string) (string, error) {
	if p.converter == nil {
		return "", services.Wrap(services.ErrConfiguration, StageConversion, "convert", "no converter configured", nil)
	}
	ctx = services.WithStage(ctx, StageConversion)
	if p.conversionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.conversionTimeout)
		defer cancel()
	}
	return p.converter.Convert(ctx, src)
}

func (p *Pipeline) transcribe(ctx context.Context, logger *slog.Logger, audioPath string) transcript.Transcript {
	if p.transcriber == nil {
		logger.Debug("no transcription provider; writing placeholder")
		return transcript.Unavailable()
	}
	ctx = services.WithStage(ctx, StageTranscription)

	var result transcript.Transcript
	attempts, err := p.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		callCtx := ctx
		if p.transcriptionTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.transcriptionTimeout)
			defer cancel()
		}
		t, err := p.transcriber.Transcribe(callCtx, audioPath)
		if err != nil {
			logger.Warn("transcription attempt failed",
				logging.String(logging.FieldStage, StageTranscription),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", p.retry.Attempts),
				logging.Error(err),
				logging.String(logging.FieldEventType, "transcription_retry"),
			)
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		logging.WarnWithContext(logger, "transcription unavailable; writing placeholder", "transcription_exhausted",
			logging.String(logging.FieldStage, StageTranscription),
			logging.Int("attempts", attempts),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "note body says \""+transcript.Placeholder+"\""),
		)
		return transcript.Unavailable()
	}
	if result.Empty() {
		logger.Info("transcription returned no speech; writing placeholder",
			logging.String(logging.FieldEventType, "transcription_empty"),
		)
		return transcript.Unavailable()
	}
	return result
}

func (p *Pipeline) removeTemp(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debug("temp mp3 not removed", logging.String("path", path), logging.Error(err))
	}
}

func (p *Pipeline) logOutcome(logger *slog.Logger, out Outcome) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_outcome"),
		logging.String("outcome", string(out.Kind)),
		logging.String(logging.FieldStage, out.Stage),
	}
	switch out.Kind {
	case OutcomeDone:
		attrs = append(attrs,
			logging.String("note_path", out.Job.NotePath),
			logging.Bool("transcribed", out.Job.TranscriptAvailable),
		)
		logger.Info("recording processed", logging.Args(attrs...)...)
	case OutcomeFailedPermanent:
		attrs = append(attrs,
			logging.String("reason", out.Reason),
			logging.String(logging.FieldErrorKind, string(services.ClassPermanent)),
			logging.String(logging.FieldErrorHint, services.Hint(out.Err)),
		)
		logger.Error("recording failed permanently", logging.Args(attrs...)...)
	case OutcomeTransient:
		attrs = append(attrs,
			logging.String("reason", out.Reason),
			logging.String(logging.FieldErrorKind, string(services.ClassTransient)),
			logging.String(logging.FieldErrorHint, services.Hint(out.Err)),
		)
		logger.Warn("recording will be retried on the next scan", logging.Args(attrs...)...)
	case OutcomeAbandoned:
		attrs = append(attrs, logging.String("reason", out.Reason))
		logger.Info("recording abandoned", logging.Args(attrs...)...)
	}
}
