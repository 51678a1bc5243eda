// Package providers defines the model-invocation interface and the
// OpenAI-compatible HTTP implementation.
package providers

import "context"

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the normalized response from any backend.
type ChatResponse struct {
	Content      string            `json:"content"`
	ToolCalls    []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason string            `json:"finish_reason"`
	Usage        map[string]int    `json:"usage,omitempty"`
}

// HasToolCalls reports whether the model requested tool execution.
func (r *ChatResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Empty reports a response with neither text nor tool calls, which the
// agent loop treats as a transient provider fault.
func (r *ChatResponse) Empty() bool {
	return r.Content == "" && len(r.ToolCalls) == 0
}

// Message is one conversation entry. ToolCalls and ToolCallID carry the
// function-calling bookkeeping for assistant and tool roles.
type Message struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

// ChatRequest holds all parameters for one completion call.
type ChatRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

// Provider is the interface for all LLM backends. Transport failures and
// non-200 responses are returned as errors so the caller owns retry policy.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	DefaultModel() string
}
