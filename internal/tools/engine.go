package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Status reports whether a tool call succeeded.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of one tool invocation. Error results carry both a
// typed Err for callers and a Content string suitable for feeding back to
// the model.
type Result struct {
	CallID   string
	Status   Status
	Content  string
	Err      error
	Duration time.Duration
}

// Policy configures the safety checks the engine runs before and around
// every tool invocation.
type Policy struct {
	// WorkspaceRoot, when set, confines filesystem arguments of
	// PathRestricted tools to this directory.
	WorkspaceRoot string

	// DenyPatterns are regexes matched against the command arguments of
	// CommandGuarded tools. A match rejects the call before spawning.
	DenyPatterns []string

	// Timeout is the per-invocation budget. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a tool invocation when the policy does not set one.
const DefaultTimeout = 60 * time.Second

// Engine validates and runs single tool invocations under a Policy.
// A failing pre-check returns before the tool starts, so no side effect
// can have happened.
type Engine struct {
	policy Policy
	deny   []*regexp.Regexp
	cache  *schemaCache
}

// schemaCache holds compiled parameter schemas, shared between an engine
// and its per-workspace derivations.
type schemaCache struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewEngine compiles the policy's deny patterns and returns an engine.
func NewEngine(policy Policy) (*Engine, error) {
	deny := make([]*regexp.Regexp, 0, len(policy.DenyPatterns))
	for _, p := range policy.DenyPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", p, err)
		}
		deny = append(deny, re)
	}
	return &Engine{
		policy: policy,
		deny:   deny,
		cache:  &schemaCache{schemas: make(map[string]*jsonschema.Schema)},
	}, nil
}

// ForWorkspace derives an engine whose path confinement is rooted at the
// given workspace. Deny patterns, timeout, and compiled schemas are shared
// with the parent. When the parent enforces no confinement at all, the
// derived engine doesn't either.
func (e *Engine) ForWorkspace(root string) *Engine {
	if e.policy.WorkspaceRoot == "" || root == "" {
		return e
	}
	derived := &Engine{policy: e.policy, deny: e.deny, cache: e.cache}
	derived.policy.WorkspaceRoot = root
	return derived
}

// Execute runs one tool call: schema validation, path restriction, command
// deny-list, then the tool itself under the invocation timeout.
func (e *Engine) Execute(ctx context.Context, tool Tool, callID string, args map[string]any) Result {
	start := time.Now()

	if err := e.validateArgs(tool, args); err != nil {
		return e.fail(callID, start, err)
	}
	if err := e.checkPaths(tool, args); err != nil {
		return e.fail(callID, start, err)
	}
	if err := e.checkCommands(tool, args); err != nil {
		return e.fail(callID, start, err)
	}

	budget := e.policy.Timeout
	if budget == 0 {
		budget = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		content, err := tool.Execute(ctx, args)
		done <- outcome{content, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return e.fail(callID, start, fmt.Errorf("%s: %w", tool.Name(), o.err))
		}
		return Result{
			CallID:   callID,
			Status:   StatusOK,
			Content:  o.content,
			Duration: time.Since(start),
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return e.fail(callID, start, &TimeoutError{Tool: tool.Name(), Budget: budget})
		}
		return e.fail(callID, start, ctx.Err())
	}
}

func (e *Engine) fail(callID string, start time.Time, err error) Result {
	return Result{
		CallID:   callID,
		Status:   StatusError,
		Content:  "Error: " + err.Error(),
		Err:      err,
		Duration: time.Since(start),
	}
}

// validateArgs checks the arguments against the tool's declared schema.
func (e *Engine) validateArgs(tool Tool, args map[string]any) error {
	schema, err := e.compiledSchema(tool)
	if err != nil {
		return &ValidationError{Tool: tool.Name(), Detail: err.Error()}
	}

	// Round-trip through JSON so numeric types match what the schema
	// validator expects.
	payload, err := json.Marshal(args)
	if err != nil {
		return &ValidationError{Tool: tool.Name(), Detail: err.Error()}
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return &ValidationError{Tool: tool.Name(), Detail: err.Error()}
	}
	if err := schema.Validate(decoded); err != nil {
		return &ValidationError{Tool: tool.Name(), Detail: err.Error()}
	}
	return nil
}

func (e *Engine) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	e.cache.mu.Lock()
	defer e.cache.mu.Unlock()
	if s, ok := e.cache.schemas[tool.Name()]; ok {
		return s, nil
	}
	raw, err := json.Marshal(tool.Parameters())
	if err != nil {
		return nil, err
	}
	s, err := jsonschema.CompileString(tool.Name()+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	e.cache.schemas[tool.Name()] = s
	return s, nil
}

// checkPaths confines filesystem arguments to the workspace root.
func (e *Engine) checkPaths(tool Tool, args map[string]any) error {
	if e.policy.WorkspaceRoot == "" {
		return nil
	}
	pr, ok := tool.(PathRestricted)
	if !ok {
		return nil
	}
	for _, argName := range pr.PathArguments() {
		p, _ := args[argName].(string)
		if p == "" {
			continue
		}
		resolved, err := resolveUnder(e.policy.WorkspaceRoot, p)
		if err != nil {
			return &PermissionError{Tool: tool.Name(), Detail: err.Error()}
		}
		// Rewrite in place so the tool operates on the vetted path.
		args[argName] = resolved
	}
	return nil
}

// checkCommands matches command arguments against the deny patterns.
func (e *Engine) checkCommands(tool Tool, args map[string]any) error {
	if len(e.deny) == 0 {
		return nil
	}
	cg, ok := tool.(CommandGuarded)
	if !ok {
		return nil
	}
	for _, argName := range cg.CommandArguments() {
		cmd, _ := args[argName].(string)
		if cmd == "" {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(cmd))
		for _, re := range e.deny {
			if re.MatchString(lower) {
				return &PermissionError{
					Tool:   tool.Name(),
					Detail: fmt.Sprintf("command matches denied pattern %q", re.String()),
				}
			}
		}
	}
	return nil
}

// resolveUnder resolves p (expanding ~, joining relative paths onto root)
// and verifies the result stays under root.
func resolveUnder(root, p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(absRoot, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(absRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the workspace %s", p, absRoot)
	}
	return p, nil
}
