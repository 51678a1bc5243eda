// Package tools defines the Tool contract, the tool registry, and the
// execution engine that enforces the sandbox policy around every call.
package tools

import "context"

// Tool is the interface all agent tools implement.
type Tool interface {
	// Name returns the tool name used in LLM function calls.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any

	// Execute runs the tool with schema-valid arguments. Expected failures
	// are reported in the returned string so the model can recover; a
	// non-nil error means the tool itself broke.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// PathRestricted is implemented by tools whose arguments reference the
// filesystem. The engine resolves each named argument and rejects the call
// when it escapes the workspace root.
type PathRestricted interface {
	PathArguments() []string
}

// CommandGuarded is implemented by tools that spawn processes. The engine
// matches each named argument against the configured deny patterns before
// anything is spawned.
type CommandGuarded interface {
	CommandArguments() []string
}

// ToSchema converts a tool to OpenAI function-calling format.
func ToSchema(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
