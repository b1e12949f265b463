package errors

import (
	"fmt"
	"os"
)

// LogHandler is an ErrorHandler that logs errors to stderr.
type LogHandler struct {
	// Verbose enables detailed output including stack traces.
	Verbose bool
}

// HandleError logs a ReflowError to stderr.
func (h *LogHandler) HandleError(err *ReflowError) {
	if err == nil {
		return
	}
	if h.Verbose {
		fmt.Fprintf(os.Stderr, "[reflow error] %s [%s]", err.Op, err.Kind)
		if err.Path != "" {
			fmt.Fprintf(os.Stderr, " path=%s", err.Path)
		}
		fmt.Fprintf(os.Stderr, ": %v\n", err.Err)
		if err.StackTrace != "" {
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", err.StackTrace)
		}
	} else {
		fmt.Fprintf(os.Stderr, "[reflow error] %s: %v\n", err.Op, err.Err)
	}
}

// HandleEvaluationError logs an EvaluationError to stderr.
func (h *LogHandler) HandleEvaluationError(err *EvaluationError) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "[reflow eval error] %s\n", err.Error())
	if h.Verbose && err.StackTrace != "" {
		fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", err.StackTrace)
	}
}
