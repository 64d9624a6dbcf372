// Package errors renders failures for the terminal and the dashboard notice
// line, and maps them to process exit codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/julianstephens/studyplanner/internal/logger"
)

const (
	ExitFailure     = 1
	ExitInterrupted = 130
)

// HintError carries a suggested next step alongside the underlying error.
type HintError struct {
	Err  error
	Hint string
}

func (e *HintError) Error() string { return e.Err.Error() }

func (e *HintError) Unwrap() error { return e.Err }

// WithHint attaches a suggested next step to err. A nil err stays nil.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &HintError{Err: err, Hint: hint}
}

// Hint returns the innermost hint attached to err, if any.
func Hint(err error) string {
	var h *HintError
	if errors.As(err, &h) {
		return h.Hint
	}
	return ""
}

// Format renders err for the terminal with an "Error: " prefix and a
// trailing hint line.
func Format(err error) string {
	if err == nil {
		return ""
	}
	msg := fmt.Sprintf("Error: %v", err)
	if hint := Hint(err); hint != "" {
		msg += "\nHint: " + hint
	}
	return msg
}

// Notice renders a failed operation as a single line for the status bar.
func Notice(action string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Could not %s: %v", action, err)
}

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// Report logs err and writes it to w. It returns the exit code for err.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(w, Format(err))
	return ExitCode(err)
}

// Fatal reports err on stderr and exits. It does nothing for a nil err.
func Fatal(err error) {
	if err != nil {
		os.Exit(Report(os.Stderr, err))
	}
}
