// Package contextguard implements token pre-checks so long conversations
// trigger history consolidation before they overflow the model's window.
package contextguard

import (
	"fmt"
	"log"
	"strings"

	"github.com/crewgate/crewgate/internal/providers"
)

// Action describes the pre-check result.
type Action string

const (
	ActionPass        Action = "pass"        // Token usage OK
	ActionWarn        Action = "warn"        // Approaching limit
	ActionConsolidate Action = "consolidate" // History should be consolidated
	ActionReset       Action = "reset"       // Session must be force-reset
)

// PreCheckResult holds the result of a token pre-check.
type PreCheckResult struct {
	Action        Action
	TokenEstimate int
	TokenLimit    int
	Ratio         float64
}

// ShouldNotifyUser returns true if the user should be informed (on reset).
func (r PreCheckResult) ShouldNotifyUser() bool {
	return r.Action == ActionReset
}

// NotificationMessage returns a user-visible message for resets.
func (r PreCheckResult) NotificationMessage() string {
	if r.Action != ActionReset {
		return ""
	}
	return fmt.Sprintf("The conversation exceeded the model's context limit (%.0f%%) and was reset. Earlier history has been summarized.",
		r.Ratio*100)
}

// ModelTokenLimits maps model names to their context window sizes.
var ModelTokenLimits = map[string]int{
	// OpenAI
	"gpt-4o":        128_000,
	"gpt-4o-mini":   128_000,
	"gpt-4-turbo":   128_000,
	"openai/gpt-4o": 128_000,
	// Anthropic
	"anthropic/claude-sonnet-4-20250514": 200_000,
	"anthropic/claude-opus-4-5":          200_000,
	// DeepSeek
	"deepseek/deepseek-chat":     64_000,
	"deepseek/deepseek-reasoner": 64_000,
	// Default
	"_default": 64_000,
}

// GetModelLimit returns the token limit for a model.
func GetModelLimit(model string) int {
	if limit, ok := ModelTokenLimits[model]; ok {
		return limit
	}
	// Try prefix match
	for k, v := range ModelTokenLimits {
		if strings.HasPrefix(model, k) {
			return v
		}
	}
	return ModelTokenLimits["_default"]
}

// EstimateTokens estimates the token count for a list of messages.
// Rough heuristic of chars/2; errs on the side of overestimation.
func EstimateTokens(messages []providers.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
		for _, call := range msg.ToolCalls {
			if fn, ok := call["function"].(map[string]any); ok {
				if args, ok := fn["arguments"].(string); ok {
					total += len(args)
				}
			}
		}
	}
	return total / 2
}

// Config holds the guard's thresholds as fractions of the model limit.
type Config struct {
	WarnRatio        float64 // log warning
	ConsolidateRatio float64 // trigger history consolidation
	CriticalRatio    float64 // force reset
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WarnRatio:        0.70,
		ConsolidateRatio: 0.80,
		CriticalRatio:    0.95,
	}
}

// Guard monitors token usage across model calls.
type Guard struct {
	cfg Config

	// Stats
	TotalChecks        int
	WarningCount       int
	ConsolidationCount int
	ResetCount         int
}

// NewGuard creates a new context guard.
func NewGuard(cfg Config) *Guard {
	if cfg.ConsolidateRatio <= 0 {
		cfg = DefaultConfig()
	}
	return &Guard{cfg: cfg}
}

// PreCheck estimates token usage before a model call and returns the
// action to take.
func (g *Guard) PreCheck(messages []providers.Message, model string) PreCheckResult {
	g.TotalChecks++

	tokenEstimate := EstimateTokens(messages)
	tokenLimit := GetModelLimit(model)
	ratio := float64(tokenEstimate) / float64(tokenLimit)

	result := PreCheckResult{
		TokenEstimate: tokenEstimate,
		TokenLimit:    tokenLimit,
		Ratio:         ratio,
	}

	switch {
	case ratio >= g.cfg.CriticalRatio:
		result.Action = ActionReset
		g.ResetCount++
		log.Printf("[ContextGuard] CRITICAL %.0f%% (%d/%d), forcing reset",
			ratio*100, tokenEstimate, tokenLimit)

	case ratio >= g.cfg.ConsolidateRatio:
		result.Action = ActionConsolidate
		g.ConsolidationCount++
		log.Printf("[ContextGuard] %.0f%% (%d/%d), consolidating history",
			ratio*100, tokenEstimate, tokenLimit)

	case ratio >= g.cfg.WarnRatio:
		result.Action = ActionWarn
		g.WarningCount++
		log.Printf("[ContextGuard] WARN %.0f%% (%d/%d)",
			ratio*100, tokenEstimate, tokenLimit)

	default:
		result.Action = ActionPass
	}

	return result
}

// Stats returns guard statistics.
func (g *Guard) Stats() map[string]any {
	return map[string]any{
		"totalChecks":        g.TotalChecks,
		"warningCount":       g.WarningCount,
		"consolidationCount": g.ConsolidationCount,
		"resetCount":         g.ResetCount,
	}
}
