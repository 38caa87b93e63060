package services

import "context"

type contextKey string

const (
	identityKey  contextKey = "identity"
	stageKey     contextKey = "stage"
	deviceKey    contextKey = "device"
	requestIDKey contextKey = "request_id"
)

// WithIdentity annotates context with the recording's ledger identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	if identity == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext extracts the recording identity if present.
func IdentityFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(identityKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithDevice annotates context with the source volume's device identity.
func WithDevice(ctx context.Context, device string) context.Context {
	if device == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceKey, device)
}

// DeviceFromContext returns the device identity if present.
func DeviceFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(deviceKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
