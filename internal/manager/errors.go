package manager

import (
	"whisprd/internal/archive"
	"whisprd/internal/binpath"
	"whisprd/internal/download"
	"whisprd/internal/oneshot"
	"whisprd/internal/server"
)

// Stable machine-readable error kinds surfaced through the API.
const (
	KindModelNotFound      = "MODEL_NOT_FOUND"
	KindDownloadInProgress = "DOWNLOAD_IN_PROGRESS"
	KindDownloadFailed     = "DOWNLOAD_FAILED"
	KindDownloadCorrupted  = "DOWNLOAD_CORRUPTED"
	KindDownloadCancelled  = "DOWNLOAD_CANCELLED"
	KindDownloadRedirect   = "DOWNLOAD_REDIRECT_ERROR"
	KindBinaryNotFound     = "BINARY_NOT_FOUND"
	KindModelNotDownloaded = "MODEL_NOT_DOWNLOADED"
	KindServerStartFailed  = "SERVER_START_FAILED"
	KindServerNotRunning   = "SERVER_NOT_RUNNING"
	KindInferenceFailed    = "INFERENCE_FAILED"
	KindInferenceTimeout   = "INFERENCE_TIMEOUT"
	KindInternal           = "INTERNAL"
)

// NotFoundError indicates an id absent from the registry.
type NotFoundError struct{ ID string }

func (e NotFoundError) Error() string { return "model not found: " + e.ID }

// IsNotFound reports whether err indicates an unknown model id.
func IsNotFound(err error) bool {
	_, ok := err.(NotFoundError)
	return ok
}

// NotDownloadedError indicates an inference request against a known model
// whose artifact is not on disk. Inference never triggers a download.
type NotDownloadedError struct{ ID string }

func (e NotDownloadedError) Error() string { return "model not downloaded: " + e.ID }

// IsNotDownloaded reports whether err indicates a missing local artifact.
func IsNotDownloaded(err error) bool {
	_, ok := err.(NotDownloadedError)
	return ok
}

// wrongKindError indicates a model routed at the wrong runtime, e.g. a
// speech model sent to the completion endpoint.
type wrongKindError struct{ id, want string }

func (e wrongKindError) Error() string { return "model " + e.id + " is not a " + e.want + " model" }

// IsWrongKind reports whether err indicates a kind mismatch.
func IsWrongKind(err error) bool {
	_, ok := err.(wrongKindError)
	return ok
}

// Kind maps any error produced by Manager operations onto the closed set of
// API error kinds.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return KindModelNotFound
	case IsNotDownloaded(err):
		return KindModelNotDownloaded
	case IsWrongKind(err):
		return KindInferenceFailed
	case download.IsInProgress(err):
		return KindDownloadInProgress
	case download.IsCancelled(err):
		return KindDownloadCancelled
	case download.IsCorrupted(err), archive.IsBadArchive(err):
		return KindDownloadCorrupted
	case download.IsRedirectError(err):
		return KindDownloadRedirect
	case download.IsFailed(err):
		return KindDownloadFailed
	case binpath.IsNotFound(err):
		return KindBinaryNotFound
	case server.IsStartError(err):
		return KindServerStartFailed
	case server.IsNotRunning(err):
		return KindServerNotRunning
	case server.IsTimeout(err), oneshot.IsTimeout(err):
		return KindInferenceTimeout
	case server.IsInferenceError(err), oneshot.IsRunError(err), oneshot.IsConvertError(err):
		return KindInferenceFailed
	default:
		return KindInternal
	}
}
