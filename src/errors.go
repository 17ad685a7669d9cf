package ebookbot

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures of an external call that may succeed when retried.
	ErrTransient = errors.New("transient failure")
	// ErrSchema marks a model response that does not parse into the expected shape.
	ErrSchema = errors.New("response does not match schema")
	// ErrVerification marks a failed consistency check between the TOC and the chapter list.
	ErrVerification = errors.New("consistency check failed")

	ErrMissingCredential = errors.New("missing API credential")
	ErrMissingInput      = errors.New("missing input file")
	ErrOutputLocked      = errors.New("output directory is in use by another run")
	ErrIllegalTransition = errors.New("illegal state transition")
)

// StageError names the stage a run failed in.
type StageError struct {
	Stage    State
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func schemaErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}
