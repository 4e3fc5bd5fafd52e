package server

import "fmt"

// StartError indicates the server process failed to reach readiness: it
// exited early, crashed on launch or missed the startup deadline. Stderr
// carries the tail of the child's diagnostics when the process produced any.
type StartError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e StartError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("server start failed: %v; stderr tail: %s", e.Err, e.Stderr)
	}
	return fmt.Sprintf("server start failed: %v", e.Err)
}

func (e StartError) Unwrap() error { return e.Err }

// IsStartError reports whether err indicates a failed server start.
func IsStartError(err error) bool {
	_, ok := err.(StartError)
	return ok
}

// notRunningError indicates an inference request arrived while no ready
// server exists.
type notRunningError struct{}

func (notRunningError) Error() string { return "inference server not running" }

// ErrNotRunning constructs a notRunningError.
func ErrNotRunning() error { return notRunningError{} }

// IsNotRunning reports whether err indicates an absent or unready server.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// InferenceError indicates a request to a running server failed.
type InferenceError struct {
	Status int
	Body   string
	Err    error
}

func (e InferenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inference failed: http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e InferenceError) Unwrap() error { return e.Err }

// IsInferenceError reports whether err indicates a failed inference request.
func IsInferenceError(err error) bool {
	_, ok := err.(InferenceError)
	return ok
}

// timeoutError indicates the inference request exceeded its deadline.
type timeoutError struct{}

func (timeoutError) Error() string { return "inference timed out" }

// ErrTimeout constructs a timeoutError.
func ErrTimeout() error { return timeoutError{} }

// IsTimeout reports whether err indicates an over-deadline inference request.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}
