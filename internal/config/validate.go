package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

var bitratePattern = regexp.MustCompile(`^[0-9]+k$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.VaultDir == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/pendant/config.toml"
		}
		return fmt.Errorf("paths.vault_dir is required. Set %s env var or edit %s (create with 'pendant config init')", defaultVaultDirEnv, defaultPath)
	}
	work := filepath.Clean(c.Paths.WorkDir)
	for _, other := range []struct{ key, dir string }{
		{"paths.vault_dir", c.Paths.VaultDir},
		{"paths.state_dir", c.Paths.StateDir},
		{"paths.log_dir", c.Paths.LogDir},
	} {
		if filepath.Clean(other.dir) == work {
			return fmt.Errorf("paths.work_dir must differ from %s; it is emptied on daemon start", other.key)
		}
	}
	if strings.ContainsAny(c.Scanner.TargetFolder, `/\`) {
		return errors.New("scanner.target_folder must be a single folder name")
	}
	return nil
}

func (c *Config) validateTimings() error {
	return ensurePositiveMap(map[string]int{
		"scanner.settle_interval_ms":       c.Scanner.SettleIntervalMs,
		"watcher.poll_interval_seconds":    c.Watcher.PollIntervalSeconds,
		"conversion.timeout_seconds":       c.Conversion.TimeoutSeconds,
		"transcription.attempts":           c.Transcription.Attempts,
		"transcription.timeout_seconds":    c.Transcription.TimeoutSeconds,
		"workflow.workers":                 c.Workflow.Workers,
		"workflow.rescan_interval_seconds": c.Workflow.RescanIntervalSeconds,
		"notifications.request_timeout":    c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateConversion() error {
	if !bitratePattern.MatchString(c.Conversion.Bitrate) {
		return fmt.Errorf("conversion.bitrate %q must look like 128k", c.Conversion.Bitrate)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Provider {
	case ProviderWhisperX, ProviderNone:
	case ProviderRemote:
		if c.Transcription.APIURL == "" {
			return errors.New("transcription.api_url must be set when transcription.provider is remote")
		}
	default:
		return fmt.Errorf("transcription.provider %q must be one of whisperx, remote, none", c.Transcription.Provider)
	}
	if c.Transcription.Language != "auto" {
		if _, err := language.Parse(c.Transcription.Language); err != nil {
			return fmt.Errorf("transcription.language %q is not a valid language tag: %w", c.Transcription.Language, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
