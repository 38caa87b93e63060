package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Permanent markers. A failure tagged with one of these will not change on
// retry, so the recording is never attempted again.
var (
	ErrCorruptInput     = errors.New("corrupt input")
	ErrCodecUnsupported = errors.New("unsupported codec")
)

// Transient markers. The recording stays eligible for the next scan.
var (
	ErrStorageExhausted = errors.New("storage exhausted")
	ErrUnavailable      = errors.New("service unavailable")
	ErrTimeout          = errors.New("timeout")
	ErrUnreachable      = errors.New("unreachable")
	ErrWriteFailed      = errors.New("write failed")
	ErrExternalTool     = errors.New("external tool error")
	ErrTransient        = errors.New("transient failure")
)

// Setup markers used by configuration and preflight code.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
)

// Class is the coarse failure classification recorded for a recording.
type Class string

const (
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a stage error to a failure class. Only errors carrying a
// permanent marker are permanent; everything else, including unknown errors,
// is retried on the next opportunity.
func Classify(err error) Class {
	if IsPermanent(err) {
		return ClassPermanent
	}
	return ClassTransient
}

// IsPermanent reports whether err carries a permanent marker.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrCorruptInput) || errors.Is(err, ErrCodecUnsupported)
}

// IsTransient reports whether err should leave the recording retryable.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}

// FailureReason returns a short, single-line reason suitable for persisting in
// the ledger.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = strings.TrimSpace(msg[:idx])
	}
	const limit = 240
	if len(msg) > limit {
		cut := limit - 3
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

// Hint returns operator guidance for the failure marker carried by err.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCorruptInput):
		return "recording is unreadable; inspect the WAV on the recorder and retry with 'pendant ledger retry' if it was copied incompletely"
	case errors.Is(err, ErrCodecUnsupported):
		return "recording uses an encoding ffmpeg cannot decode; check the recorder's audio format"
	case errors.Is(err, ErrStorageExhausted):
		return "free disk space in work_dir or the vault; the recording is retried on the next scan"
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return "check the transcription provider is running and reachable"
	case errors.Is(err, ErrUnreachable), errors.Is(err, ErrWriteFailed):
		return "check the vault directory exists and is writable; the recording is retried on the next scan"
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrValidation):
		return "review the configuration file and run 'pendant config validate'"
	case errors.Is(err, ErrExternalTool):
		return "check the external tool is installed; run 'pendant status'"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
