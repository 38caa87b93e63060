package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandRequiresVault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PENDANT_VAULT_DIR", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error without a vault")
	}
	if !strings.Contains(err.Error(), "vault_dir") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for positional arguments")
	}
}
