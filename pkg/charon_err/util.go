// pkg/charon_err/util.go

package charon_err

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

var debugMode bool

func SetDebugMode(enabled bool) {
	debugMode = enabled
}

func DebugEnabled() bool {
	return debugMode
}

// NewExpectedError wraps an error for softer UX handling.
func NewExpectedError(err error) error {
	if err == nil {
		return nil
	}
	return &UserError{cause: err}
}

// IsExpectedUserError checks if the error is marked as expected.
func IsExpectedUserError(err error) bool {
	var e *UserError
	return errors.As(err, &e)
}

// IsUserAbort reports whether the error is a deliberate cancellation at an
// interactive prompt. Abort is silent: callers must not print an error banner.
func IsUserAbort(err error) bool {
	return errors.Is(err, ErrAbortedByUser)
}

// PrintError prints a human-readable error message without exiting.
// User aborts print nothing.
func PrintError(userMessage string, err error) {
	if err == nil || IsUserAbort(err) {
		return
	}
	if IsExpectedUserError(err) {
		zap.L().Warn(userMessage, zap.Error(err))
		fmt.Fprintf(os.Stderr, "⚠️  Notice: %s: %v\n", userMessage, err)
		return
	}
	zap.L().Error(userMessage, zap.Error(err))
	fmt.Fprintf(os.Stderr, "❌ Error: %s: %v\n", userMessage, err)
}
