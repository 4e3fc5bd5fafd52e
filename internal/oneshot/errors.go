package oneshot

import "fmt"

// TimeoutError indicates the CLI exceeded its wall-clock budget and was
// killed.
type TimeoutError struct {
	Elapsed string
}

func (e TimeoutError) Error() string { return "transcription timed out after " + e.Elapsed }

// IsTimeout reports whether err indicates a killed, over-budget invocation.
func IsTimeout(err error) bool {
	_, ok := err.(TimeoutError)
	return ok
}

// RunError indicates the CLI exited unsuccessfully. Stderr carries the tail
// of the process's diagnostics.
type RunError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e RunError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("transcriber failed (exit %d): %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("transcriber failed (exit %d): %v", e.ExitCode, e.Err)
}

func (e RunError) Unwrap() error { return e.Err }

// IsRunError reports whether err indicates a failed CLI invocation.
func IsRunError(err error) bool {
	_, ok := err.(RunError)
	return ok
}

// ConvertError indicates the audio converter could not produce a wav file.
type ConvertError struct {
	Err error
}

func (e ConvertError) Error() string { return "audio conversion failed: " + e.Err.Error() }

func (e ConvertError) Unwrap() error { return e.Err }

// IsConvertError reports whether err came from the audio conversion step.
func IsConvertError(err error) bool {
	_, ok := err.(ConvertError)
	return ok
}
