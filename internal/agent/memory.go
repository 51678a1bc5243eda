// Package agent implements the per-agent processing core: context
// assembly, memory, skills, the tool-calling loop, and subagents.
package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// MemoryStore provides two-layer memory per agent workspace:
// MEMORY.md (long-term, included in every prompt) and HISTORY.md
// (append-only, grep-searchable log).
type MemoryStore struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string
}

// NewMemoryStore creates a MemoryStore rooted at workspace/memory.
func NewMemoryStore(workspace string) *MemoryStore {
	dir := filepath.Join(workspace, "memory")
	os.MkdirAll(dir, 0o755)
	return &MemoryStore{
		MemoryDir:   dir,
		MemoryFile:  filepath.Join(dir, "MEMORY.md"),
		HistoryFile: filepath.Join(dir, "HISTORY.md"),
	}
}

// ReadLongTerm returns the MEMORY.md contents, or "" if none exists yet.
func (m *MemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.MemoryFile)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteLongTerm replaces MEMORY.md with content.
func (m *MemoryStore) WriteLongTerm(content string) error {
	return os.WriteFile(m.MemoryFile, []byte(content), 0o644)
}

// AppendHistory adds an entry to HISTORY.md, normalized to end with a
// blank line so entries stay grep-friendly.
func (m *MemoryStore) AppendHistory(entry string) error {
	f, err := os.OpenFile(m.HistoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.TrimRight(entry, "\n") + "\n\n")
	return err
}

// RecordDigest logs a consolidation digest so summarized-away history
// stays searchable.
func (m *MemoryStore) RecordDigest(sessionKey, digest string) error {
	return m.AppendHistory("## Consolidated " + sessionKey + "\n" + digest)
}

// GetMemoryContext returns the long-term memory formatted for prompt
// inclusion, or "" when the agent has no memory yet.
func (m *MemoryStore) GetMemoryContext() string {
	lt := m.ReadLongTerm()
	if lt == "" {
		return ""
	}
	return "## Long-term Memory\n" + lt
}
