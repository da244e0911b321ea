// Package tools provides the tool registry and execution framework.
//
// This file defines the error taxonomy for tool execution.
package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArguments means the tool input failed type or range
	// checks. The caller can correct the input and try again.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrNotFound means an id or query did not select exactly one item.
	// Ambiguous queries land here too; they are never resolved by
	// picking a match.
	ErrNotFound = errors.New("not found")

	// ErrPreconditionFailed means the document is not in a state the
	// tool can work with, such as rebalancing before a profile exists.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

func invalidArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
