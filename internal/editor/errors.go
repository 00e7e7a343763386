package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned for any command issued while a background removal
	// is in flight.
	ErrBusy = errors.New("background removal in progress")

	// ErrNotDirty is returned by Export and Undo on an unedited session.
	ErrNotDirty = errors.New("session has no edits")

	// ErrInvalidState is returned when a command does not apply to the
	// current state, such as removing the background twice.
	ErrInvalidState = errors.New("command not allowed in current state")
)

// LoadError reports that the source image could not be fetched or decoded.
// No session exists after a LoadError.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", shortSource(e.Source), e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RemovalError reports a failed or unusable background removal. The session
// is left in StateLoaded with its prior edits and the call may be retried.
type RemovalError struct {
	Err error
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("background removal failed: %v", e.Err)
}

func (e *RemovalError) Unwrap() error { return e.Err }

// shortSource keeps inline base64 payloads out of error messages.
func shortSource(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
