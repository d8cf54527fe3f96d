package errutil

import (
	"log/slog"
)

// LogMsg logs the error as a warning with a custom message if it is not nil.
// It reports whether an error was logged.
func LogMsg(err error, msg string, args ...any) bool {
	if err == nil {
		return false
	}
	slog.Warn(msg, withError(err, args)...)
	return true
}

// ReportError logs a failure the caller decided not to propagate.
// Per-file failures in a pass go through here so the pass can keep going.
func ReportError(err error, msg string, args ...any) bool {
	if err == nil {
		return false
	}
	slog.Error(msg, withError(err, args)...)
	return true
}

func withError(err error, args []any) []any {
	return append([]any{"error", err}, args...)
}
