// Package utils provides shared filesystem and session-key helpers.
package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates the directory (and parents) if missing and returns it.
func EnsureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// DataPath returns the crewgate data directory (~/.crewgate), creating it
// on first use.
func DataPath() string {
	home, _ := os.UserHomeDir()
	p := filepath.Join(home, ".crewgate")
	os.MkdirAll(p, 0o755)
	return p
}

// WorkspacePath resolves a workspace directory, expanding a leading ~ and
// creating the directory. An empty workspace falls back to
// <data>/workspace.
func WorkspacePath(workspace string) string {
	if workspace == "" {
		workspace = filepath.Join(DataPath(), "workspace")
	} else if strings.HasPrefix(workspace, "~") {
		home, _ := os.UserHomeDir()
		workspace = filepath.Join(home, strings.TrimPrefix(workspace, "~"))
	}
	os.MkdirAll(workspace, 0o755)
	return workspace
}

// SafeFilename replaces characters that are unsafe in filenames with
// underscores and trims surrounding whitespace.
func SafeFilename(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '_'
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

// ParseSessionKey splits a session key "channel:chat_id" into its parts.
// Chat IDs may themselves contain colons; only the first one separates the
// channel.
func ParseSessionKey(key string) (channel, chatID string, err error) {
	channel, chatID, ok := strings.Cut(key, ":")
	if !ok || channel == "" || chatID == "" {
		return "", "", &InvalidSessionKeyError{Key: key}
	}
	return channel, chatID, nil
}

// InvalidSessionKeyError is returned when a session key cannot be parsed.
type InvalidSessionKeyError struct {
	Key string
}

func (e *InvalidSessionKeyError) Error() string {
	return "invalid session key: " + e.Key
}
