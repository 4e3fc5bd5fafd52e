package types

// ModelKind selects the runtime path for a model: speech models run through
// the one-shot transcriber, text models through the persistent server.
type ModelKind string

const (
	KindSpeech ModelKind = "speech"
	KindText   ModelKind = "text"
)

// ArchiveLayout describes a multi-file model bundle shipped as an archive.
type ArchiveLayout struct {
	// Expected top-level directory inside the archive.
	// example: parakeet-tdt-0.6b-v2
	DirName string `json:"dir_name" yaml:"dir_name"`
	// Component files required for the model to count as installed,
	// relative to the bundle directory.
	// example: ["encoder.onnx","decoder.onnx","joiner.onnx","tokens.txt"]
	Files []string `json:"files" yaml:"files"`
}

// Model is an immutable descriptor for a downloadable model artifact.
// Descriptors come from the static registry and are never mutated.
type Model struct {
	// Stable identifier.
	// example: whisper-base
	ID string `json:"id" yaml:"id"`
	// Human-friendly name.
	// example: Whisper Base
	Name string `json:"name" yaml:"name"`
	// Runtime kind (speech or text).
	Kind ModelKind `json:"kind" yaml:"kind"`
	// Remote URL of the artifact (single file or archive).
	URL string `json:"url" yaml:"url"`
	// File name under the cache dir for single-file artifacts, or the
	// archive file name for bundles.
	// example: ggml-base.bin
	FileName string `json:"file_name" yaml:"file_name"`
	// Approximate artifact size in bytes, used for progress totals when the
	// remote does not advertise a content length.
	ApproxBytes int64 `json:"approx_bytes,omitempty" yaml:"approx_bytes,omitempty"`
	// Non-nil for multi-file bundles; nil for single-file artifacts.
	Archive *ArchiveLayout `json:"archive,omitempty" yaml:"archive,omitempty"`
}

// IsBundle reports whether the model ships as a multi-file archive.
func (m Model) IsBundle() bool { return m.Archive != nil }

// DownloadStatus enumerates the lifecycle of an in-flight download.
type DownloadStatus string

const (
	DownloadAbsent      DownloadStatus = "absent"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadComplete    DownloadStatus = "complete"
	DownloadFailed      DownloadStatus = "failed"
)

// DownloadProgress is a point-in-time snapshot of an in-flight download.
type DownloadProgress struct {
	ModelID    string         `json:"model_id"`
	OpID       string         `json:"op_id"`
	Status     DownloadStatus `json:"status"`
	Downloaded int64          `json:"downloaded_bytes"`
	Total      int64          `json:"total_bytes"`
	Percent    float64        `json:"percent"`
	SpeedMBps  float64        `json:"speed_mbps"`
}

// ServerStatus summarizes the supervised inference server.
type ServerStatus struct {
	// True when the server is ready to accept inference requests.
	Available bool `json:"available"`
	// True when the child process is running (it may be running but degraded).
	Running bool `json:"running"`
	// Lifecycle state: stopped, starting, ready, degraded.
	State string `json:"state"`
	// Bound port, 0 when stopped.
	Port int `json:"port,omitempty"`
	// PID of the child process, 0 when stopped.
	PID int `json:"pid,omitempty"`
	// Model the server is serving.
	ModelName string `json:"model_name,omitempty"`
}

// GpuStatus reports the resolved acceleration capability.
type GpuStatus struct {
	// Resolved binary variant: cpu, vulkan, cuda.
	Variant string `json:"variant"`
	// User preference: auto, force_cpu, force_gpu.
	Preference string `json:"preference"`
	// True when the resolution came from a detection probe (AUTO path).
	Probed bool `json:"probed"`
	// Unix seconds of the cached probe result, 0 when no probe was cached.
	CachedAtUnix int64 `json:"cached_at_unix,omitempty"`
}

// ConverterStatus reports the audio converter diagnostic.
type ConverterStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}
