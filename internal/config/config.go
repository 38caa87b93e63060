package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains vault and local state locations.
type Paths struct {
	VaultDir        string `toml:"vault_dir"`
	MediaFolderName string `toml:"media_folder_name"`
	StateDir        string `toml:"state_dir"`
	LogDir          string `toml:"log_dir"`
	WorkDir         string `toml:"work_dir"`
}

// Scanner controls how recorder volumes are searched for new recordings.
type Scanner struct {
	TargetFolder     string   `toml:"target_folder"`
	Extensions       []string `toml:"extensions"`
	SettleIntervalMs int      `toml:"settle_interval_ms"`
	WatchFolder      bool     `toml:"watch_folder"`
}

// Watcher controls removable volume detection.
type Watcher struct {
	PollIntervalSeconds int      `toml:"poll_interval_seconds"`
	MountRoots          []string `toml:"mount_roots"`
	UseNetlink          bool     `toml:"use_netlink"`
}

// Conversion contains WAV to MP3 settings.
type Conversion struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	Bitrate        string `toml:"bitrate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Transcription selects and configures the speech-to-text provider.
type Transcription struct {
	Provider       string `toml:"provider"`
	Language       string `toml:"language"`
	Model          string `toml:"model"`
	Attempts       int    `toml:"attempts"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	CUDAEnabled    bool   `toml:"cuda_enabled"`
	HuggingFace    string `toml:"hf_token"`
}

// Pipeline contains post-processing cleanup switches.
type Pipeline struct {
	DeleteSource bool `toml:"delete_source"`
	KeepMP3      bool `toml:"keep_mp3"`
}

// Workflow contains orchestrator sizing and timing.
type Workflow struct {
	Workers               int `toml:"workers"`
	RescanIntervalSeconds int `toml:"rescan_interval_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	NoteCreated    bool   `toml:"note_created"`
	Failures       bool   `toml:"failures"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for pendant.
//
// Configuration sections by subsystem:
//   - Paths: vault, state, log and scratch directories
//   - Scanner: recorder folder name, accepted extensions, settle interval
//   - Watcher: polling cadence and mount roots for volume detection
//   - Conversion: ffmpeg settings
//   - Transcription: provider selection and retry attempts
//   - Pipeline: cleanup after a note is written
//   - Workflow: worker pool size and rescan cadence
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scanner       Scanner       `toml:"scanner"`
	Watcher       Watcher       `toml:"watcher"`
	Conversion    Conversion    `toml:"conversion"`
	Transcription Transcription `toml:"transcription"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/pendant/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pendant.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The vault media folder is created on a best-effort basis so the daemon can
// keep monitoring while a synced vault is temporarily unavailable; note
// emission reports the failure per file instead.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	_ = os.MkdirAll(c.MediaDir(), 0o755)
	return nil
}

// LedgerPath returns the SQLite database location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pendantd.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "pendantd.pid")
}

// MediaDir returns the vault subfolder that receives converted audio.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Paths.VaultDir, c.Paths.MediaFolderName)
}

// SettleInterval returns the scanner stability window.
func (c *Config) SettleInterval() time.Duration {
	return time.Duration(c.Scanner.SettleIntervalMs) * time.Millisecond
}

// PollInterval returns the watcher polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watcher.PollIntervalSeconds) * time.Second
}

// RescanInterval returns how often attached volumes are rescanned.
func (c *Config) RescanInterval() time.Duration {
	return time.Duration(c.Workflow.RescanIntervalSeconds) * time.Second
}

// TranscriptionTimeout bounds one transcription attempt.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}

// ConversionTimeout bounds one ffmpeg invocation.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
