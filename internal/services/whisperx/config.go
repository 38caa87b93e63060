package whisperx

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Model is the WhisperX model to use (e.g., "base", "large-v3").
	Model string
	// Language is the spoken language; empty or "auto" lets WhisperX detect it.
	Language string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// VADMethod selects the voice activity detection method ("silero" or "pyannote").
	VADMethod string
	// HFToken is the Hugging Face token for pyannote VAD.
	HFToken string
	// WorkDir receives WhisperX output files. Defaults to the audio file's directory.
	WorkDir string
}

// WhisperX configuration constants.
const (
	DefaultModel      = "base"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	BeamSize          = "5"
	Temperature       = "0.0"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// UVXCommand runs WhisperX from an isolated uv tool environment.
const UVXCommand = "uvx"
