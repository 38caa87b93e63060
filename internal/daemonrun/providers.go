package daemonrun

import (
	"fmt"
	"log/slog"

	"pendant/internal/config"
	"pendant/internal/deps"
	"pendant/internal/logging"
	"pendant/internal/media/ffprobe"
	"pendant/internal/notes"
	"pendant/internal/pipeline"
	"pendant/internal/services/asr"
	"pendant/internal/services/ffmpeg"
	"pendant/internal/services/whisperx"
)

// NewTranscriber returns the configured speech-to-text provider. The "none"
// provider yields a nil Transcriber, which makes every note a placeholder.
func NewTranscriber(cfg *config.Config) (pipeline.Transcriber, error) {
	switch cfg.Transcription.Provider {
	case config.ProviderWhisperX:
		return whisperx.NewService(whisperx.Config{
			Model:       cfg.Transcription.Model,
			Language:    cfg.Transcription.Language,
			CUDAEnabled: cfg.Transcription.CUDAEnabled,
			HFToken:     cfg.Transcription.HuggingFace,
			WorkDir:     cfg.Paths.WorkDir,
		}), nil
	case config.ProviderRemote:
		return asr.New(cfg.Transcription.APIURL,
			asr.WithAPIKey(cfg.Transcription.APIKey),
			asr.WithLanguage(cfg.Transcription.Language),
			asr.WithTimeout(cfg.TranscriptionTimeout()),
		), nil
	case config.ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("transcription provider %q is not supported", cfg.Transcription.Provider)
	}
}

// NewPipeline builds the conversion, transcription, and note stages from cfg.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	transcriber, err := NewTranscriber(cfg)
	if err != nil {
		return nil, err
	}
	ffmpegBinary := deps.ResolveFFmpegPath(cfg.Conversion.FFmpegBinary)
	converter := ffmpeg.New(ffmpeg.Options{
		Binary:  ffmpegBinary,
		Bitrate: cfg.Conversion.Bitrate,
		WorkDir: cfg.Paths.WorkDir,
	})
	prober := ffprobe.NewProber(deps.ResolveFFprobePath(ffmpegBinary, cfg.Conversion.FFprobeBinary), nil)
	store := notes.NewStore(cfg.Paths.VaultDir, cfg.Paths.MediaFolderName,
		notes.WithProber(prober),
		notes.WithLogger(logger),
	)

	opts := pipeline.Options{
		Converter:            converter,
		Transcriber:          transcriber,
		Notes:                store,
		Retry:                pipeline.RetryPolicy{Attempts: cfg.Transcription.Attempts},
		ConversionTimeout:    cfg.ConversionTimeout(),
		TranscriptionTimeout: cfg.TranscriptionTimeout(),
		DeleteSource:         cfg.Pipeline.DeleteSource,
		KeepMP3:              cfg.Pipeline.KeepMP3,
		Logger:               logger,
	}
	if transcriber == nil {
		logging.WarnWithContext(logger, "transcription disabled", "transcription_disabled",
			logging.String(logging.FieldErrorHint, "set transcription.provider to whisperx or remote"),
			logging.String(logging.FieldImpact, "notes are written with a placeholder instead of a transcript"),
		)
	}
	return pipeline.New(opts), nil
}
