package verifier

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrInvalidRequest   = errors.New("invalid verification request")
	ErrVerifierNotFound = errors.New("verifier executable not found")
	ErrUnsupportedMode  = errors.New("unsupported verifier mode")
	ErrClosed           = errors.New("verifier service closed")
)

// RunError wraps errors with invocation context.
type RunError struct {
	RunID string
	Op    string // The operation that failed
	Err   error
}

func (e *RunError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("run %s: %s: %s", e.RunID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest returns true if the error is a caller input problem.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrUnsupportedMode)
}

// IsLaunchFailure returns true if the verifier binary could not be started.
func IsLaunchFailure(err error) bool {
	return errors.Is(err, ErrVerifierNotFound)
}
