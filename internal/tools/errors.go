package tools

import (
	"errors"
	"fmt"
	"time"
)

// ErrToolNotFound is returned when a requested tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ValidationError reports tool arguments that failed schema validation.
// The tool is never invoked when this is returned.
type ValidationError struct {
	Tool   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Detail)
}

// PermissionError reports a sandbox policy violation (path outside the
// workspace, denied command pattern). The tool is never invoked.
type PermissionError struct {
	Tool   string
	Detail string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for %s: %s", e.Tool, e.Detail)
}

// TimeoutError reports a tool execution that exceeded its budget and was
// cancelled.
type TimeoutError struct {
	Tool   string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Tool, e.Budget)
}
