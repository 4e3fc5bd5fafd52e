package download

import (
	"fmt"
)

// inProgressError signals that a transfer for the model id already exists.
type inProgressError struct{ modelID string }

func (e inProgressError) Error() string { return "download in progress: " + e.modelID }

// ErrInProgress constructs an inProgressError.
func ErrInProgress(modelID string) error { return inProgressError{modelID: modelID} }

// IsInProgress reports whether err indicates a duplicate download request.
func IsInProgress(err error) bool {
	_, ok := err.(inProgressError)
	return ok
}

// FailedError is a terminal transfer failure. Status is the HTTP status code
// when the remote answered with one, 0 for transport-level failures.
type FailedError struct {
	Status int
	Err    error
}

func (e FailedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download failed: http status %d", e.Status)
	}
	return "download failed: " + e.Err.Error()
}

func (e FailedError) Unwrap() error { return e.Err }

// IsFailed reports whether err is a terminal transfer failure.
func IsFailed(err error) bool {
	_, ok := err.(FailedError)
	return ok
}

// redirectError signals a broken or over-long redirect chain.
type redirectError struct{ msg string }

func (e redirectError) Error() string { return "download redirect error: " + e.msg }

// IsRedirectError reports whether err indicates a redirect problem.
func IsRedirectError(err error) bool {
	_, ok := err.(redirectError)
	return ok
}

// CorruptedError indicates the completed stream was below the
// minimum-viable-artifact threshold.
type CorruptedError struct {
	Size int64
	Min  int64
}

func (e CorruptedError) Error() string {
	return fmt.Sprintf("download corrupted: %d bytes, need at least %d", e.Size, e.Min)
}

// IsCorrupted reports whether err indicates a truncated artifact.
func IsCorrupted(err error) bool {
	_, ok := err.(CorruptedError)
	return ok
}

// cancelledError is the outcome of an explicit Cancel call, distinguished
// from a genuine network failure at the same code path.
type cancelledError struct{ modelID string }

func (e cancelledError) Error() string { return "download cancelled: " + e.modelID }

// IsCancelled reports whether err is a cancellation outcome.
func IsCancelled(err error) bool {
	_, ok := err.(cancelledError)
	return ok
}
