package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTool is configurable per test: schema, path/command arguments, and
// execution behavior.
type stubTool struct {
	name   string
	params map[string]any
	paths  []string
	cmds   []string
	fn     func(ctx context.Context, args map[string]any) (string, error)
	calls  int
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Parameters() map[string]any {
	if t.params != nil {
		return t.params
	}
	return map[string]any{"type": "object"}
}
func (t *stubTool) PathArguments() []string    { return t.paths }
func (t *stubTool) CommandArguments() []string { return t.cmds }

func (t *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	t.calls++
	if t.fn != nil {
		return t.fn(ctx, args)
	}
	return "ok", nil
}

func newTestEngine(t *testing.T, policy Policy) *Engine {
	t.Helper()
	e, err := NewEngine(policy)
	require.NoError(t, err)
	return e
}

func TestEngine_Success(t *testing.T) {
	e := newTestEngine(t, Policy{})
	tool := &stubTool{name: "echo"}

	res := e.Execute(context.Background(), tool, "call_1", map[string]any{})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, "call_1", res.CallID)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, tool.calls)
}

func TestEngine_SchemaValidationRejects(t *testing.T) {
	e := newTestEngine(t, Policy{})
	tool := &stubTool{
		name: "typed",
		params: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"count": map[string]any{"type": "integer"},
			},
			"required": []string{"count"},
		},
	}

	res := e.Execute(context.Background(), tool, "c1", map[string]any{"count": "three"})
	assert.Equal(t, StatusError, res.Status)
	var verr *ValidationError
	require.ErrorAs(t, res.Err, &verr)
	assert.Contains(t, res.Content, "Error:")
	assert.Equal(t, 0, tool.calls, "tool must not run on invalid arguments")

	res = e.Execute(context.Background(), tool, "c2", map[string]any{})
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 0, tool.calls)
}

func TestEngine_PathOutsideWorkspaceRejected(t *testing.T) {
	ws := t.TempDir()
	e := newTestEngine(t, Policy{WorkspaceRoot: ws})
	tool := &stubTool{name: "read_file", paths: []string{"path"}}

	res := e.Execute(context.Background(), tool, "c1", map[string]any{"path": "../../etc/passwd"})
	assert.Equal(t, StatusError, res.Status)
	var perr *PermissionError
	require.ErrorAs(t, res.Err, &perr)
	assert.Equal(t, 0, tool.calls)
}

func TestEngine_PathInsideWorkspaceRewritten(t *testing.T) {
	ws := t.TempDir()
	e := newTestEngine(t, Policy{WorkspaceRoot: ws})

	var seen string
	tool := &stubTool{
		name:  "read_file",
		paths: []string{"path"},
		fn: func(_ context.Context, args map[string]any) (string, error) {
			seen, _ = args["path"].(string)
			return "ok", nil
		},
	}

	res := e.Execute(context.Background(), tool, "c1", map[string]any{"path": "notes.txt"})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, filepath.Join(ws, "notes.txt"), seen)
}

func TestEngine_ForWorkspace_ConfinesToOwnWorkspace(t *testing.T) {
	parent := t.TempDir()
	mine := filepath.Join(parent, "backend_dev")
	sibling := filepath.Join(parent, "main")
	require.NoError(t, os.MkdirAll(mine, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	base := newTestEngine(t, Policy{WorkspaceRoot: parent})
	e := base.ForWorkspace(mine)

	var seen string
	tool := &stubTool{
		name:  "write_file",
		paths: []string{"path"},
		fn: func(_ context.Context, args map[string]any) (string, error) {
			seen, _ = args["path"].(string)
			return "ok", nil
		},
	}

	// A relative path that would land in a sibling's workspace when
	// resolved against the shared parent must stay inside this agent's.
	res := e.Execute(context.Background(), tool, "c1", map[string]any{"path": "main/pwned.txt"})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, filepath.Join(mine, "main", "pwned.txt"), seen)

	// Explicit escapes to the sibling are rejected outright.
	for _, p := range []string{sibling, "../main/pwned.txt", ".."} {
		res = e.Execute(context.Background(), tool, "c2", map[string]any{"path": p})
		assert.Equal(t, StatusError, res.Status, "path %q must not escape", p)
		var perr *PermissionError
		assert.ErrorAs(t, res.Err, &perr)
	}

	// "." is the agent's own workspace, not the shared parent.
	res = e.Execute(context.Background(), tool, "c3", map[string]any{"path": "."})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, filepath.Clean(mine), seen)
}

func TestEngine_ForWorkspace_UnrestrictedParentStaysUnrestricted(t *testing.T) {
	base := newTestEngine(t, Policy{})
	assert.Same(t, base, base.ForWorkspace(t.TempDir()))
}

func TestEngine_DeniedCommandRejected(t *testing.T) {
	e := newTestEngine(t, Policy{DenyPatterns: DefaultDenyPatterns})
	tool := &stubTool{name: "exec", cmds: []string{"command"}}

	for _, cmd := range []string{"rm -rf /", "sudo shutdown now", "dd if=/dev/zero of=/dev/sda"} {
		res := e.Execute(context.Background(), tool, "c1", map[string]any{"command": cmd})
		assert.Equal(t, StatusError, res.Status, "command %q should be denied", cmd)
		var perr *PermissionError
		assert.ErrorAs(t, res.Err, &perr)
	}
	assert.Equal(t, 0, tool.calls)

	res := e.Execute(context.Background(), tool, "c2", map[string]any{"command": "ls -la"})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, tool.calls)
}

func TestEngine_Timeout(t *testing.T) {
	e := newTestEngine(t, Policy{Timeout: 50 * time.Millisecond})
	tool := &stubTool{
		name: "slow",
		fn: func(_ context.Context, _ map[string]any) (string, error) {
			time.Sleep(500 * time.Millisecond)
			return "late", nil
		},
	}

	res := e.Execute(context.Background(), tool, "c1", map[string]any{})
	assert.Equal(t, StatusError, res.Status)
	var terr *TimeoutError
	require.ErrorAs(t, res.Err, &terr)
	assert.Contains(t, res.Content, "timed out")
}

func TestEngine_ToolErrorWrapped(t *testing.T) {
	e := newTestEngine(t, Policy{})
	tool := &stubTool{
		name: "broken",
		fn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", assert.AnError
		},
	}

	res := e.Execute(context.Background(), tool, "c1", map[string]any{})
	assert.Equal(t, StatusError, res.Status)
	assert.ErrorIs(t, res.Err, assert.AnError)
	assert.Contains(t, res.Content, "Error: broken:")
}

func TestEngine_InvalidDenyPattern(t *testing.T) {
	_, err := NewEngine(Policy{DenyPatterns: []string{"("}})
	assert.Error(t, err)
}

func TestRegistry_ResolveAndSchemas(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "echo"})

	tool, err := r.Resolve("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", tool.Name())

	_, err = r.Resolve("missing")
	assert.ErrorIs(t, err, ErrToolNotFound)

	schemas := r.Schemas()
	require.Len(t, schemas, 1)
	fn := schemas[0]["function"].(map[string]any)
	assert.Equal(t, "echo", fn["name"])
}
