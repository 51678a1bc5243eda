package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crewgate/crewgate/internal/bus"
	"github.com/crewgate/crewgate/internal/contextguard"
	"github.com/crewgate/crewgate/internal/providers"
	"github.com/crewgate/crewgate/internal/registry"
	"github.com/crewgate/crewgate/internal/session"
	"github.com/crewgate/crewgate/internal/tools"
	"github.com/crewgate/crewgate/internal/utils"
)

// providerRetries bounds retries of transport errors and empty responses
// before the turn fails with an apology.
const providerRetries = 3

var retryBackoff = 2 * time.Second

const degradedAnswer = "I wasn't able to finish within the allowed number of tool steps. Here's where I got to - ask me to continue and I'll pick it up from here."

const providerApology = "I'm having trouble reaching the language model right now. Please try again in a moment."

// Deps are the shared components a Loop is wired with. The instance
// manager owns them; every agent instance gets the same bus and session
// store, while the engine is re-rooted at each instance's own workspace.
type Deps struct {
	Bus       *bus.MessageBus
	Engine    *tools.Engine
	Sessions  *session.Manager
	Guard     *contextguard.Guard
	Scheduler tools.JobScheduler
	WebAPIKey string
}

// Loop drives one agent identity: context assembly, the bounded
// tool-calling loop, and session persistence. Turns are serialized per
// instance; concurrent sessions bound to the same agent take strict turns.
type Loop struct {
	spec     registry.AgentSpec
	provider providers.Provider
	deps     Deps

	ctxb      *ContextBuilder
	tools     *tools.Registry
	subagents *SubagentManager

	msgTool      *tools.MessageTool
	spawnTool    *tools.SpawnTool
	scheduleTool *tools.ScheduleTool

	turnMu sync.Mutex
}

// NewLoop builds an agent instance from its spec. The spec must be
// normalized (registry fills defaults at load time).
func NewLoop(spec registry.AgentSpec, provider providers.Provider, deps Deps) *Loop {
	if deps.Guard == nil {
		deps.Guard = contextguard.NewGuard(contextguard.DefaultConfig())
	}
	if deps.Engine != nil {
		// Each instance exclusively owns its workspace; path checks for
		// this agent's tools must confine to it, not to the shared parent.
		deps.Engine = deps.Engine.ForWorkspace(spec.Workspace)
	}

	a := &Loop{
		spec:     spec,
		provider: provider,
		deps:     deps,
		ctxb:     NewContextBuilder(spec.Name, spec.Workspace, spec.SystemPrompt),
	}
	a.subagents = NewSubagentManager(provider, spec.Name, spec.Workspace, deps.Bus, deps.Engine, spec.Model)
	a.tools = a.buildToolRegistry()
	return a
}

// Name returns the agent identity this loop serves.
func (a *Loop) Name() string { return a.spec.Name }

// Spec returns the agent spec this loop was built from.
func (a *Loop) Spec() registry.AgentSpec { return a.spec }

func (a *Loop) buildToolRegistry() *tools.Registry {
	reg := tools.NewRegistry()

	all := []tools.Tool{
		&tools.ReadFileTool{Root: a.spec.Workspace},
		&tools.WriteFileTool{Root: a.spec.Workspace},
		&tools.EditFileTool{Root: a.spec.Workspace},
		&tools.ListDirTool{Root: a.spec.Workspace},
		&tools.ExecTool{WorkingDir: a.spec.Workspace},
		&tools.WebFetchTool{},
	}
	if a.deps.WebAPIKey != "" {
		all = append(all, &tools.WebSearchTool{APIKey: a.deps.WebAPIKey})
	}

	a.msgTool = &tools.MessageTool{Send: func(msg bus.OutboundMessage) error {
		if a.deps.Bus == nil {
			return fmt.Errorf("bus not configured")
		}
		a.deps.Bus.PublishOutbound(msg)
		return nil
	}}
	all = append(all, a.msgTool)

	a.spawnTool = &tools.SpawnTool{Spawn: a.subagents.Spawn}
	all = append(all, a.spawnTool)

	if a.deps.Scheduler != nil {
		a.scheduleTool = &tools.ScheduleTool{Scheduler: a.deps.Scheduler}
		all = append(all, a.scheduleTool)
	}

	// An explicit tool list in the spec restricts the agent to those tools.
	allow := map[string]bool{}
	for _, name := range a.spec.Tools {
		allow[name] = true
	}
	for _, t := range all {
		if len(allow) > 0 && !allow[t.Name()] {
			continue
		}
		reg.Register(t)
	}
	return reg
}

// Process handles one inbound message and returns exactly one response.
// Failures are folded into the response content so the user always hears
// back.
func (a *Loop) Process(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	a.msgTool.SetContext(msg.Channel, msg.ChatID)
	a.spawnTool.SetContext(msg.Channel, msg.ChatID)
	if a.scheduleTool != nil {
		a.scheduleTool.SetContext(msg.Channel, msg.ChatID)
	}

	sess := a.deps.Sessions.GetOrCreate(msg.SessionKey())
	messages, notice := a.buildTurn(ctx, sess, msg)

	content, err := a.runToolLoop(ctx, messages)
	if err != nil {
		log.Printf("[Agent:%s] turn failed: %v", a.spec.Name, err)
		content = providerApology
	}
	if content == "" {
		content = "Completed processing."
	}

	sess.AddMessage("user", msg.Content)
	sess.AddMessage("assistant", content)
	if err := a.deps.Sessions.Save(sess); err != nil {
		log.Printf("[Agent:%s] session save failed: %v", a.spec.Name, err)
	}

	if notice != "" {
		content = notice + "\n\n" + content
	}

	return bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
		ReplyTo: msg.SenderID,
	}
}

// buildTurn assembles the message list and runs the context guard,
// consolidating or resetting history first when the window is at risk.
func (a *Loop) buildTurn(ctx context.Context, sess *session.Session, msg bus.InboundMessage) ([]providers.Message, string) {
	build := func() []providers.Message {
		history := toProviderMessages(sess.GetHistory(a.spec.MemoryWindow))
		return a.ctxb.BuildMessages(history, msg.Content, msg.Channel, msg.ChatID)
	}

	messages := build()
	check := a.deps.Guard.PreCheck(messages, a.spec.Model)
	switch check.Action {
	case contextguard.ActionConsolidate:
		if a.consolidate(ctx, sess) {
			messages = build()
		}
	case contextguard.ActionReset:
		sess.Clear()
		if err := a.deps.Sessions.Save(sess); err != nil {
			log.Printf("[Agent:%s] session save failed: %v", a.spec.Name, err)
		}
		return build(), check.NotificationMessage()
	}
	return messages, ""
}

// runToolLoop executes the bounded tool-calling loop: invoke the model,
// dispatch requested tools through the engine, feed results back, repeat
// until the model answers in plain text or the iteration cap is hit.
func (a *Loop) runToolLoop(ctx context.Context, messages []providers.Message) (string, error) {
	for iteration := 0; iteration < a.spec.MaxIterations; iteration++ {
		resp, err := a.chatWithRetry(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       a.tools.Schemas(),
			Model:       a.spec.Model,
			MaxTokens:   a.spec.MaxTokens,
			Temperature: a.spec.Temperature,
		})
		if err != nil {
			return "", err
		}

		if !resp.HasToolCalls() {
			return resp.Content, nil
		}

		var callDicts []map[string]any
		for _, tc := range resp.ToolCalls {
			callDicts = append(callDicts, toolCallDict(tc))
		}
		messages = AddAssistantMessage(messages, resp.Content, callDicts)

		// Each result is keyed to a call id from this round; nothing
		// else gets appended as a tool message.
		for _, tc := range resp.ToolCalls {
			messages = AddToolResult(messages, tc.ID, tc.Name, a.dispatch(ctx, tc))
		}
	}

	log.Printf("[Agent:%s] iteration cap (%d) reached", a.spec.Name, a.spec.MaxIterations)
	return degradedAnswer, nil
}

// dispatch runs one tool call through the execution engine. Errors come
// back as content so the model can react to them.
func (a *Loop) dispatch(ctx context.Context, tc providers.ToolCallRequest) string {
	tool, err := a.tools.Resolve(tc.Name)
	if err != nil {
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}

	res := a.deps.Engine.Execute(ctx, tool, tc.ID, tc.Arguments)
	if res.Status == tools.StatusError {
		log.Printf("[Agent:%s] tool %s failed after %s: %v", a.spec.Name, tc.Name, res.Duration.Round(time.Millisecond), res.Err)
	}
	return res.Content
}

// chatWithRetry calls the provider, retrying transport errors and empty
// responses (no text, no tool calls) with linear backoff.
func (a *Loop) chatWithRetry(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= providerRetries; attempt++ {
		resp, err := a.provider.Chat(ctx, req)
		if err == nil && !resp.Empty() {
			return resp, nil
		}
		if err != nil {
			lastErr = err
			log.Printf("[Agent:%s] provider error (attempt %d/%d): %v", a.spec.Name, attempt, providerRetries, err)
		} else {
			lastErr = fmt.Errorf("model returned empty response")
			log.Printf("[Agent:%s] empty response (attempt %d/%d)", a.spec.Name, attempt, providerRetries)
		}

		if attempt < providerRetries {
			select {
			case <-time.After(retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("provider exhausted after %d attempts: %w", providerRetries, lastErr)
}

// consolidate asks the model for a digest of the session history and
// replaces older messages with it, keeping the most recent half of the
// memory window verbatim. Returns true if history was replaced.
func (a *Loop) consolidate(ctx context.Context, sess *session.Session) bool {
	history := toProviderMessages(sess.Messages)
	prompt := []providers.Message{
		{Role: "system", Content: "Summarize the following conversation into a compact digest. Preserve decisions, facts, names, and open tasks. Output only the digest."},
	}
	prompt = append(prompt, history...)

	resp, err := a.provider.Chat(ctx, providers.ChatRequest{
		Messages:  prompt,
		Model:     a.spec.Model,
		MaxTokens: a.spec.MaxTokens,
	})
	if err != nil || resp.Content == "" {
		log.Printf("[Agent:%s] consolidation failed: %v", a.spec.Name, err)
		return false
	}

	keep := a.spec.MemoryWindow / 2
	sess.ReplaceHistory(resp.Content, keep)
	if err := a.deps.Sessions.Save(sess); err != nil {
		log.Printf("[Agent:%s] session save failed: %v", a.spec.Name, err)
	}
	if err := a.ctxb.Memory.RecordDigest(sess.Key, resp.Content); err != nil {
		log.Printf("[Agent:%s] history log write failed: %v", a.spec.Name, err)
	}
	log.Printf("[Agent:%s] consolidated session %s", a.spec.Name, sess.Key)
	return true
}

// ProcessDirect handles a one-shot message outside any channel (CLI and
// cron usage). sessionKey defaults to "cli:direct".
func (a *Loop) ProcessDirect(ctx context.Context, content, sessionKey string) (string, error) {
	channel, chatID := "cli", "direct"
	if sessionKey != "" {
		if ch, id, err := utils.ParseSessionKey(sessionKey); err == nil {
			channel, chatID = ch, id
		}
	}
	out := a.Process(ctx, bus.InboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
	})
	return out.Content, nil
}

// Shutdown stops background work owned by this instance.
func (a *Loop) Shutdown() {
	a.subagents.StopAll()
}

func toProviderMessages(history []session.Message) []providers.Message {
	out := make([]providers.Message, 0, len(history))
	for _, h := range history {
		out = append(out, providers.Message{Role: h.Role, Content: h.Content})
	}
	return out
}

func toolCallDict(tc providers.ToolCallRequest) map[string]any {
	argsJSON, _ := json.Marshal(tc.Arguments)
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": string(argsJSON),
		},
	}
}
