package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"pendant/internal/language"
	"pendant/internal/services"
	"pendant/internal/transcript"
)

// Service provides WhisperX transcription capabilities.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Name identifies the provider in logs.
func (s *Service) Name() string { return "whisperx" }

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Transcribe runs WhisperX on audioPath and returns its segments.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (transcript.Transcript, error) {
	var result transcript.Transcript
	if strings.TrimSpace(audioPath) == "" {
		return result, services.Wrap(services.ErrValidation, "transcription", "whisperx", "audio path required", nil)
	}

	outputDir := s.cfg.WorkDir
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, services.Wrap(services.ErrWriteFailed, "transcription", "whisperx", "ensure output dir", err)
	}

	if err := s.run(ctx, UVXCommand, s.buildArgs(audioPath, outputDir)...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return result, services.Wrap(services.ErrTimeout, "transcription", "whisperx", "run exceeded deadline", err)
		}
		return result, services.Wrap(services.ErrUnavailable, "transcription", "whisperx", "run failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	defer os.Remove(jsonPath)

	payload, err := loadPayload(jsonPath)
	if err != nil {
		return result, services.Wrap(services.ErrUnavailable, "transcription", "whisperx", "read output", err)
	}
	result.Language = payload.Language
	for _, seg := range payload.Segments {
		result.Segments = append(result.Segments, transcript.Segment{
			Start: transcript.Seconds(seg.Start),
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	result.Text = transcript.JoinText(result.Segments)
	return result, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 32)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if lang := language.ToISO2(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type payload struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func loadPayload(jsonPath string) (payload, error) {
	var out payload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse whisperx json: %w", err)
	}
	return out, nil
}
