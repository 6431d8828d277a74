// pkg/charon_err/classification.go
//
// Error classification with exit codes and remediation hints.

package charon_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for appropriate handling.
type ErrorCategory int

const (
	// CategoryValidation - bad input caught before any side effect (exit 2)
	CategoryValidation ErrorCategory = iota
	// CategoryConflict - existing state blocks the request; a flag resolves it (exit 1)
	CategoryConflict
	// CategoryRemote - metadata server query/DDL/connection failure (exit 1)
	CategoryRemote
	// CategoryIO - filesystem failure, always names the offending path (exit 1)
	CategoryIO
	// CategoryUser - user cancelled at a prompt (exit 130)
	CategoryUser
)

// ClassifiedError wraps an error with category and remediation info.
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

func (e *ClassifiedError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}
	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}
	return sb.String()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error category.
func (e *ClassifiedError) ExitCode() int {
	switch e.Category {
	case CategoryValidation:
		return 2
	case CategoryUser:
		return 130
	default:
		return 1
	}
}

func NewValidationError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryValidation, Message: message, Cause: cause}
}

func NewConflictError(message string, remediation ...string) *ClassifiedError {
	return &ClassifiedError{Category: CategoryConflict, Message: message, Remediation: remediation}
}

func NewRemoteError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryRemote, Message: message, Cause: cause}
}

func NewIOError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{Category: CategoryIO, Message: message, Cause: cause}
}

// Category extracts the category of a classified error, or CategoryRemote as
// a conservative default for unclassified ones.
func Category(err error) ErrorCategory {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryRemote
}

// ExitCode maps any error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrAbortedByUser) {
		return 130
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.ExitCode()
	}
	return 1
}
