package config

const (
	defaultStateDir                  = "~/.local/share/pendant"
	defaultLogDir                    = "~/.local/share/pendant/logs"
	defaultWorkDir                   = "~/.cache/pendant/work"
	defaultMediaFolderName           = "media"
	defaultTargetFolder              = "RECORD"
	defaultSettleIntervalMillis      = 2000
	defaultPollIntervalSeconds       = 2
	defaultFFmpegBinary              = "ffmpeg"
	defaultFFprobeBinary             = "ffprobe"
	defaultBitrate                   = "128k"
	defaultConversionTimeoutSeconds  = 600
	defaultTranscriptionProvider     = ProviderWhisperX
	defaultTranscriptionLanguage     = "en"
	defaultTranscriptionModel        = "base"
	defaultTranscriptionAttempts     = 3
	defaultTranscriptionTimeout      = 300
	defaultWorkers                   = 2
	defaultRescanIntervalSeconds     = 60
	defaultNotifyRequestTimeout      = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
	defaultTranscriptionAPIKeyEnv    = "PENDANT_TRANSCRIPTION_API_KEY"
	defaultVaultDirEnv               = "PENDANT_VAULT_DIR"
	defaultTranscriptionAPIURLEnv    = "PENDANT_TRANSCRIPTION_API_URL"
	defaultWhisperXHuggingFaceEnvOne = "HUGGING_FACE_HUB_TOKEN"
	defaultWhisperXHuggingFaceEnvTwo = "HF_TOKEN"
)

// Transcription providers.
const (
	ProviderWhisperX = "whisperx"
	ProviderRemote   = "remote"
	ProviderNone     = "none"
)

var defaultMountRoots = []string{"/media", "/run/media", "/mnt"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:        defaultStateDir,
			LogDir:          defaultLogDir,
			WorkDir:         defaultWorkDir,
			MediaFolderName: defaultMediaFolderName,
		},
		Scanner: Scanner{
			TargetFolder:     defaultTargetFolder,
			Extensions:       []string{".wav"},
			SettleIntervalMs: defaultSettleIntervalMillis,
			WatchFolder:      true,
		},
		Watcher: Watcher{
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MountRoots:          append([]string(nil), defaultMountRoots...),
			UseNetlink:          true,
		},
		Conversion: Conversion{
			FFmpegBinary:   defaultFFmpegBinary,
			FFprobeBinary:  defaultFFprobeBinary,
			Bitrate:        defaultBitrate,
			TimeoutSeconds: defaultConversionTimeoutSeconds,
		},
		Transcription: Transcription{
			Provider:       defaultTranscriptionProvider,
			Language:       defaultTranscriptionLanguage,
			Model:          defaultTranscriptionModel,
			Attempts:       defaultTranscriptionAttempts,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Workflow: Workflow{
			Workers:               defaultWorkers,
			RescanIntervalSeconds: defaultRescanIntervalSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			NoteCreated:    true,
			Failures:       true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
