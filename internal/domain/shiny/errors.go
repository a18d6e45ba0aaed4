package shiny

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New when a required setting is empty.
	ErrInvalidConfig = errors.New("invalid shiny configuration")

	// ErrPortExhausted indicates no bindable port was found in the range.
	ErrPortExhausted = errors.New("no available port in range")

	// ErrReadinessTimeout indicates the runtime neither announced itself nor
	// answered a probe before the readiness budget ran out.
	ErrReadinessTimeout = errors.New("timed out waiting for shiny to become ready")

	// ErrProcessExited indicates the runtime exited during the readiness wait.
	ErrProcessExited = errors.New("shiny process exited before becoming ready")

	// ErrStartAborted indicates Stop was called while a start was in flight.
	ErrStartAborted = errors.New("start aborted by stop")

	// ErrClosed is returned by Start once the supervisor has been closed.
	ErrClosed = errors.New("shiny supervisor closed")

	// ErrNotRunning is returned by Stop when the registry slot is empty.
	ErrNotRunning = errors.New("no shiny process running")

	// ErrAlreadyRegistered is returned when registering over a live process.
	ErrAlreadyRegistered = errors.New("a shiny process is already registered")
)

// SpawnError wraps the OS error returned when the runtime cannot be launched.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// StopError reports a failed termination request.
type StopError struct {
	PID int
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("failed to stop shiny process %d: %v", e.PID, e.Err)
}

func (e *StopError) Unwrap() error {
	return e.Err
}

// StartError is the terminal failure of Start after the retry budget is spent.
// Err holds the failure of the last attempt.
type StartError struct {
	Attempts int
	Err      error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("failed to launch shiny app after %d attempts: %v", e.Attempts, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
