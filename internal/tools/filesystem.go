package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// resolvePath expands ~ and resolves relative paths against root.
// Workspace confinement is the engine's job, not the tool's.
func resolvePath(path, root string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) && root != "" {
		path = filepath.Join(root, path)
	}
	return filepath.Abs(path)
}

// replyf formats a tool reply for the model. Failures travel as content
// strings, never as Go errors, so the loop can feed them back.
func replyf(format string, args ...any) (string, error) {
	return fmt.Sprintf(format, args...), nil
}

// ReadFileTool reads file contents.
type ReadFileTool struct{ Root string }

func (t *ReadFileTool) Name() string            { return "read_file" }
func (t *ReadFileTool) Description() string     { return "Read the contents of a file at the given path." }
func (t *ReadFileTool) PathArguments() []string { return []string{"path"} }
func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := resolvePath(path, t.Root)
	if err != nil {
		return replyf("Error: %v", err)
	}
	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return replyf("Error: File not found: %s", path)
	}
	if err != nil {
		return replyf("Error reading file: %v", err)
	}
	if info.IsDir() {
		return replyf("Error: Not a file: %s", path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return replyf("Error reading file: %v", err)
	}
	return string(data), nil
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct{ Root string }

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file. Creates parent directories."
}
func (t *WriteFileTool) PathArguments() []string { return []string{"path"} }
func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to"},
			"content": map[string]any{"type": "string", "description": "The content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	resolved, err := resolvePath(path, t.Root)
	if err != nil {
		return replyf("Error: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return replyf("Error writing file: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return replyf("Error writing file: %v", err)
	}
	return replyf("Successfully wrote %d bytes to %s", len(content), path)
}

// EditFileTool replaces one occurrence of old_text with new_text.
type EditFileTool struct{ Root string }

func (t *EditFileTool) Name() string { return "edit_file" }
func (t *EditFileTool) Description() string {
	return "Edit a file by replacing old_text with new_text."
}
func (t *EditFileTool) PathArguments() []string { return []string{"path"} }
func (t *EditFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":     map[string]any{"type": "string", "description": "The file path to edit"},
			"old_text": map[string]any{"type": "string", "description": "The exact text to find"},
			"new_text": map[string]any{"type": "string", "description": "The replacement text"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	oldText, _ := args["old_text"].(string)
	newText, _ := args["new_text"].(string)

	resolved, err := resolvePath(path, t.Root)
	if err != nil {
		return replyf("Error: %v", err)
	}
	data, err := os.ReadFile(resolved)
	if os.IsNotExist(err) {
		return replyf("Error: File not found: %s", path)
	}
	if err != nil {
		return replyf("Error reading file: %v", err)
	}

	content := string(data)
	count := strings.Count(content, oldText)
	if count == 0 {
		return "Error: old_text not found in file. Make sure it matches exactly.", nil
	}
	if count > 1 {
		return replyf("Warning: old_text appears %d times. Please provide more context.", count)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return replyf("Error writing file: %v", err)
	}
	return replyf("Successfully edited %s", path)
}

// ListDirTool lists directory contents, directories first.
type ListDirTool struct{ Root string }

func (t *ListDirTool) Name() string            { return "list_dir" }
func (t *ListDirTool) Description() string     { return "List the contents of a directory." }
func (t *ListDirTool) PathArguments() []string { return []string{"path"} }
func (t *ListDirTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(_ context.Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := resolvePath(path, t.Root)
	if err != nil {
		return replyf("Error: %v", err)
	}
	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return replyf("Error: Directory not found: %s", path)
	}
	if err != nil {
		return replyf("Error: %v", err)
	}
	if !info.IsDir() {
		return replyf("Error: Not a directory: %s", path)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return replyf("Error listing directory: %v", err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	var lines []string
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, e.Name()+"/")
			continue
		}
		size := ""
		if fi, err := e.Info(); err == nil {
			size = fmt.Sprintf(" (%d bytes)", fi.Size())
		}
		lines = append(lines, e.Name()+size)
	}
	return strings.Join(lines, "\n"), nil
}
