package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeScanner()
	if err := c.normalizeWatcher(); err != nil {
		return err
	}
	c.normalizeConversion()
	c.normalizeTranscription()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.VaultDir) == "" {
		if value, ok := os.LookupEnv(defaultVaultDirEnv); ok {
			c.Paths.VaultDir = strings.TrimSpace(value)
		}
	}
	var err error
	if c.Paths.VaultDir, err = expandPath(strings.TrimSpace(c.Paths.VaultDir)); err != nil {
		return fmt.Errorf("paths.vault_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	c.Paths.MediaFolderName = strings.Trim(strings.TrimSpace(c.Paths.MediaFolderName), `/\`)
	if c.Paths.MediaFolderName == "" {
		c.Paths.MediaFolderName = defaultMediaFolderName
	}
	return nil
}

func (c *Config) normalizeScanner() {
	c.Scanner.TargetFolder = strings.Trim(strings.TrimSpace(c.Scanner.TargetFolder), `/\`)
	if c.Scanner.TargetFolder == "" {
		c.Scanner.TargetFolder = defaultTargetFolder
	}
	exts := make([]string, 0, len(c.Scanner.Extensions))
	seen := make(map[string]struct{}, len(c.Scanner.Extensions))
	for _, ext := range c.Scanner.Extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = []string{".wav"}
	}
	c.Scanner.Extensions = exts
}

func (c *Config) normalizeWatcher() error {
	roots := make([]string, 0, len(c.Watcher.MountRoots))
	for _, root := range c.Watcher.MountRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("watcher.mount_roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	if len(roots) == 0 {
		roots = append(roots, defaultMountRoots...)
	}
	c.Watcher.MountRoots = roots
	return nil
}

func (c *Config) normalizeConversion() {
	c.Conversion.FFmpegBinary = strings.TrimSpace(c.Conversion.FFmpegBinary)
	if c.Conversion.FFmpegBinary == "" {
		c.Conversion.FFmpegBinary = defaultFFmpegBinary
	}
	c.Conversion.FFprobeBinary = strings.TrimSpace(c.Conversion.FFprobeBinary)
	if c.Conversion.FFprobeBinary == "" {
		c.Conversion.FFprobeBinary = defaultFFprobeBinary
	}
	c.Conversion.Bitrate = strings.ToLower(strings.TrimSpace(c.Conversion.Bitrate))
	if c.Conversion.Bitrate == "" {
		c.Conversion.Bitrate = defaultBitrate
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Provider = strings.ToLower(strings.TrimSpace(c.Transcription.Provider))
	switch c.Transcription.Provider {
	case "":
		c.Transcription.Provider = defaultTranscriptionProvider
	case "whisper":
		c.Transcription.Provider = ProviderWhisperX
	}
	c.Transcription.Language = strings.TrimSpace(c.Transcription.Language)
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultTranscriptionLanguage
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	c.Transcription.APIURL = strings.TrimRight(strings.TrimSpace(c.Transcription.APIURL), "/")
	if c.Transcription.APIURL == "" {
		if value, ok := os.LookupEnv(defaultTranscriptionAPIURLEnv); ok {
			c.Transcription.APIURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv(defaultTranscriptionAPIKeyEnv); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.HuggingFace = strings.TrimSpace(c.Transcription.HuggingFace)
	if c.Transcription.HuggingFace == "" {
		if value, ok := os.LookupEnv(defaultWhisperXHuggingFaceEnvOne); ok {
			c.Transcription.HuggingFace = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv(defaultWhisperXHuggingFaceEnvTwo); ok {
			c.Transcription.HuggingFace = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
