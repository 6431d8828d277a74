/* pkg/logger/logger.go */

package logger

import (
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// PlatformLogPaths returns fallback log paths in order of priority for the platform.
func PlatformLogPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			filepath.Join(os.Getenv("HOME"), ".local", "state", "charon", "charon.log"),
			"/tmp/charon/charon.log",
		}
	case "linux":
		return []string{
			"/var/log/cyberMonkey/charon.log", // best if writable (via sudo)
			filepath.Join(os.Getenv("HOME"), ".local", "state", "charon", "charon.log"),
			"/tmp/charon/charon.log", // ephemeral
		}
	default:
		return []string{"./charon.log"}
	}
}

// FindWritableLogPath returns the first platform log path whose directory can
// be created and opened for appending.
func FindWritableLogPath() (string, error) {
	var lastErr error
	for _, path := range PlatformLogPaths() {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			lastErr = err
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			lastErr = err
			continue
		}
		_ = f.Close()
		return path, nil
	}
	return "", lastErr
}

func ParseLogLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.Set(level); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// L returns the process-wide logger, initializing a fallback if needed.
func L() *zap.Logger {
	if log == nil {
		InitFallback()
	}
	return log
}

// GetLogger is an alias kept for call sites that prefer the long name.
func GetLogger() *zap.Logger {
	return L()
}

func InitFallback() {
	if log == nil {
		log = NewFallbackLogger()
		zap.ReplaceGlobals(log)
	}
}

// Sync flushes buffered log entries. Stderr sinks report ENOTTY on some
// platforms; that is not worth surfacing.
func Sync() error {
	if log == nil {
		return nil
	}
	return log.Sync()
}
