package preflight

import (
	"context"

	"pendant/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Vault", cfg.Paths.VaultDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
	}

	if cfg.Transcription.Provider == config.ProviderRemote {
		results = append(results, CheckTranscriptionService(ctx, cfg.Transcription.APIURL, cfg.Transcription.APIKey))
	}
	return results
}
