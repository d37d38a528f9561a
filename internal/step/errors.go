package step

import (
	"errors"
	"fmt"
)

// ErrBlankPath is returned when an installation resolves to an empty home.
var ErrBlankPath = errors.New("exe path is blank")

// PathError reports a tool path that is missing or could not be checked.
type PathError struct {
	Path string
	// Err is the failure of the existence check. It is nil when the check
	// succeeded and the path does not exist.
	Err error
}

func (e *PathError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Failed checking for existence of %s: %v", e.Path, e.Err)
	}
	return e.Path + " doesn't exist"
}

func (e *PathError) Unwrap() error { return e.Err }

// ExitCodeError reports a nonzero exit of a step whose failures are fatal.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("Exited with code: %d", e.Code)
}

// AbortError ends a step. The run's result is Failure whenever Perform
// returns one.
type AbortError struct {
	Step string
	Err  error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("step %q aborted: %v", e.Step, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
