package logging

import (
	"context"
	"log/slog"

	"pendant/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldIdentity is the standardized key for a recording's ledger identity.
	FieldIdentity = "identity"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldDevice is the standardized key for the source volume's device identity.
	FieldDevice = "device"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType classifies a log line for filtering (e.g. "note_created").
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for a failure.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries the classified failure kind.
	FieldErrorKind = "error_kind"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if device, ok := services.DeviceFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDevice, device))
	}
	if id, ok := services.IdentityFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldIdentity, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
