package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFile(t *testing.T) {
	root := t.TempDir()
	w := &WriteFileTool{Root: root}
	r := &ReadFileTool{Root: root}

	out, err := w.Execute(context.Background(), map[string]any{
		"path":    "sub/dir/notes.txt",
		"content": "hello",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "Error")

	got, err := r.Execute(context.Background(), map[string]any{"path": "sub/dir/notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestReadFile_Missing(t *testing.T) {
	r := &ReadFileTool{Root: t.TempDir()}
	out, err := r.Execute(context.Background(), map[string]any{"path": "nope.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "File not found")
}

func TestEditFile_ReplacesText(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("one two three"), 0o644))

	e := &EditFileTool{Root: root}
	out, err := e.Execute(context.Background(), map[string]any{
		"path":     "a.txt",
		"old_text": "two",
		"new_text": "2",
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "Error")

	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one 2 three", string(data))
}

func TestEditFile_OldTextMissing(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0o644))

	e := &EditFileTool{Root: root}
	out, err := e.Execute(context.Background(), map[string]any{
		"path":     "a.txt",
		"old_text": "absent",
		"new_text": "x",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Error")
}

func TestListDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	l := &ListDirTool{Root: root}
	out, err := l.Execute(context.Background(), map[string]any{"path": "."})
	require.NoError(t, err)
	assert.Contains(t, out, "b.txt")
	assert.Contains(t, out, "sub")
}
