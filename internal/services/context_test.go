package services_test

import (
	"context"
	"testing"

	"pendant/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithIdentity(ctx, "abc123")
	ctx = services.WithStage(ctx, "conversion")
	ctx = services.WithDevice(ctx, "DEV123")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.IdentityFromContext(ctx); !ok || id != "abc123" {
		t.Fatalf("unexpected identity: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "conversion" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if device, ok := services.DeviceFromContext(ctx); !ok || device != "DEV123" {
		t.Fatalf("unexpected device: %v %v", device, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithIdentity(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected blank stage to be ignored")
	}
	if _, ok := services.IdentityFromContext(ctx); ok {
		t.Fatal("expected blank identity to be ignored")
	}
}
