// pkg/charon_err/types.go

package charon_err

import "errors"

// ErrAbortedByUser marks a deliberate cancellation at an interactive prompt.
// It is not a failure: nothing is printed for it and the exit code is 130.
var ErrAbortedByUser = errors.New("aborted by user")

// UserError marks an error as expected and recoverable by the user.
type UserError struct {
	cause error
}

func (e *UserError) Error() string {
	return e.cause.Error()
}

func (e *UserError) Unwrap() error {
	return e.cause
}
