package workflow

import (
	"context"

	"pendant/internal/pipeline"
	"pendant/internal/scanner"
	"pendant/internal/watcher"
)

// VolumeSource produces attach and detach events.
type VolumeSource interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan watcher.Event
}

// VolumeScanner lists stable candidates on a volume.
type VolumeScanner interface {
	Scan(ctx context.Context, volume watcher.Volume) (scanner.Result, error)
}

// FolderWatcher reports new files in a volume's target folder. It blocks
// until ctx ends.
type FolderWatcher interface {
	Watch(ctx context.Context, volume watcher.Volume, notify func()) error
}

// Processor runs one job to an outcome.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) pipeline.Outcome
}

// Ledger is the subset of the processed-file ledger the orchestrator needs.
type Ledger interface {
	TryClaim(ctx context.Context, identity, sourcePath string) (bool, error)
	MarkDone(ctx context.Context, identity string) error
	MarkFailedPermanent(ctx context.Context, identity, reason string) error
	Release(ctx context.Context, identity, reason string) error
}
