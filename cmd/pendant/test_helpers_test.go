package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pendant/internal/config"
	"pendant/internal/ledger"
	"pendant/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("PENDANT_TRANSCRIPTION_API_KEY", "")

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(homeDir, ".config", "pendant", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg, "")

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config, extra string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
vault_dir = %q
state_dir = %q
log_dir = %q
work_dir = %q

[scanner]
settle_interval_ms = %d

[transcription]
provider = %q
`,
		cfg.Paths.VaultDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.WorkDir,
		cfg.Scanner.SettleIntervalMs,
		cfg.Transcription.Provider,
	)
	if extra != "" {
		content += extra
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// seedLedger writes entries directly so CLI commands have something to show.
func seedLedger(t *testing.T, cfg *config.Config, seed func(ctx context.Context, store *ledger.Store)) {
	t.Helper()
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	seed(context.Background(), store)
	if err := store.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}
}

func mustClaim(t *testing.T, store *ledger.Store, identity, path string) {
	t.Helper()
	ok, err := store.TryClaim(context.Background(), identity, path)
	if err != nil || !ok {
		t.Fatalf("claim %s: ok=%v err=%v", identity, ok, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
