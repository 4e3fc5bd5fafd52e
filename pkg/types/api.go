package types

// ModelStatus is a registry entry joined with its on-disk state.
type ModelStatus struct {
	Model
	Downloaded bool   `json:"downloaded"`
	LocalPath  string `json:"local_path,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
}

// ModelsResponse wraps the list returned by GET /models.
type ModelsResponse struct {
	Models []ModelStatus `json:"models"`
}

// InferRequest is the payload for POST /infer.
type InferRequest struct {
	// Model identifier from the registry.
	// example: qwen2.5-3b-instruct-q4
	Model string `json:"model"`
	// Prompt text to complete.
	Prompt string `json:"prompt"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty"`
	// Maximum number of new tokens to generate.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty"`
	// Override for the accelerated "use all GPU layers" launch flag.
	// Nil means use the variant default.
	GPULayers *int `json:"gpu_layers,omitempty"`
}

// InferResponse carries the completion text, whitespace-trimmed.
type InferResponse struct {
	Text string `json:"text"`
}

// TranscribeRequest is the payload for POST /transcribe. The daemon runs on
// the same machine as its clients, so audio is referenced by path.
type TranscribeRequest struct {
	// Model identifier from the registry.
	// example: whisper-base
	Model string `json:"model"`
	// Path to the audio file on the local filesystem.
	AudioPath string `json:"audio_path"`
	// Optional language hint; empty means autodetect.
	// example: en
	Language string `json:"language,omitempty"`
}

// TranscribeResponse carries a transcription result.
type TranscribeResponse struct {
	Text string `json:"text"`
	// True when the audio contained no detectable speech. Text is the
	// "no audio detected" marker in that case, not transcript content.
	NoAudio bool `json:"no_audio,omitempty"`
	// Language hint that was passed to the transcriber, if any.
	Language string `json:"language,omitempty"`
}

// DeleteResponse reports the outcome of a model deletion.
type DeleteResponse struct {
	ModelID    string `json:"model_id,omitempty"`
	Deleted    bool   `json:"deleted"`
	FreedBytes int64  `json:"freed_bytes"`
}

// DownloadResponse is returned once a download completes.
type DownloadResponse struct {
	ModelID string `json:"model_id"`
	Path    string `json:"path"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: whisper-xxl
	Error string `json:"error"`
	// Stable machine-readable error kind.
	// example: MODEL_NOT_FOUND
	Kind string `json:"kind,omitempty"`
	// HTTP status code.
	// example: 404
	Code int `json:"code"`
}
