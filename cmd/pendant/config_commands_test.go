package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env.configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateReportsErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	writeTestConfig(t, env.configPath, env.cfg, "\n[conversion]\nbitrate = \"loud\"\n")

	_, _, err := runCLI(t, env.configPath, "config", "validate")
	if err == nil {
		t.Fatal("expected validation error for bad bitrate")
	}
	requireContains(t, err.Error(), "conversion.bitrate")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Transcription.Provider = "remote"
	writeTestConfig(t, env.configPath, env.cfg, "api_url = \"http://asr.local:9000\"\napi_key = \"super-secret\"\n")

	out, _, err := runCLI(t, env.configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "vault_dir")
	requireContains(t, out, "http://asr.local:9000")
	requireContains(t, out, redacted)
	requireNotContains(t, out, "super-secret")

	out, _, err = runCLI(t, env.configPath, "config", "show", "--reveal")
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "super-secret")
}
