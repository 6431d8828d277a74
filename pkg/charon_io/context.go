// pkg/charon_io/context.go

package charon_io

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/charon/pkg/charon_err"
	cerr "github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RuntimeContext carries the per-invocation context, logger and metadata that
// every operation receives. It replaces process-wide mutable state: anything
// an operation needs (executable path, command name) is threaded through here
// or through explicit configuration, never a global.
type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Timestamp  time.Time
	Command    string
	Attributes map[string]string
}

// NewContext sets up the logger and timing for a command invocation.
func NewContext(ctx context.Context, cmdName string) *RuntimeContext {
	log := zap.L().With(zap.String("command", cmdName)).Named(cmdName)
	return &RuntimeContext{
		Ctx:        ctx,
		Log:        log,
		Timestamp:  time.Now(),
		Command:    cmdName,
		Attributes: make(map[string]string),
	}
}

// HandlePanic recovers panics, logs them, and converts to an error.
func (rc *RuntimeContext) HandlePanic(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = cerr.AssertionFailedf("panic: %v", r)
		rc.Log.Error("panic recovered", zap.Any("panic", r))
	}
}

// End logs the command outcome. User aborts are logged at info, not error.
func (rc *RuntimeContext) End(errPtr *error) {
	duration := time.Since(rc.Timestamp)
	switch {
	case *errPtr == nil:
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	case charon_err.IsUserAbort(*errPtr):
		rc.Log.Info("Command cancelled by user", zap.Duration("duration", duration))
	default:
		rc.Log.Error("Command failed", zap.Duration("duration", duration), zap.Error(*errPtr))
	}
}
