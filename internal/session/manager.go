// Package session implements conversation session history with JSONL
// persistence, one file per session under <dataDir>/sessions.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/crewgate/crewgate/internal/utils"
)

// Message is a single conversation entry.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp string         `json:"timestamp,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Session holds a conversation's message history.
type Session struct {
	Key              string    `json:"key"`
	Messages         []Message `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	LastConsolidated int       `json:"last_consolidated"`
}

// AddMessage appends a message to the session.
func (s *Session) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.UpdatedAt = time.Now()
}

// GetHistory returns the last N messages.
func (s *Session) GetHistory(maxMessages int) []Message {
	start := 0
	if len(s.Messages) > maxMessages {
		start = len(s.Messages) - maxMessages
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Clear removes all messages.
func (s *Session) Clear() {
	s.Messages = nil
	s.LastConsolidated = 0
	s.UpdatedAt = time.Now()
}

// ReplaceHistory swaps the full history for a consolidation digest plus the
// keep most recent messages. Called after the summarization hook runs.
func (s *Session) ReplaceHistory(digest string, keep int) {
	var tail []Message
	if keep > 0 && len(s.Messages) > keep {
		tail = append(tail, s.Messages[len(s.Messages)-keep:]...)
	} else if keep > 0 {
		tail = s.Messages
	}
	s.Messages = append([]Message{{
		Role:      "system",
		Content:   "Earlier conversation summary:\n" + digest,
		Timestamp: time.Now().Format(time.RFC3339),
	}}, tail...)
	s.LastConsolidated = len(s.Messages)
	s.UpdatedAt = time.Now()
}

// Cache is an optional write-through store (e.g. Redis) layered over the
// JSONL files. Misses and failures fall back to disk.
type Cache interface {
	GetSession(key string) (*Session, bool)
	PutSession(s *Session)
}

// Manager manages conversation sessions.
type Manager struct {
	sessionsDir string
	cacheStore  Cache

	mu    sync.RWMutex
	cache map[string]*Session
}

// NewManager creates a session manager rooted at dataDir.
func NewManager(dataDir string) *Manager {
	dir := filepath.Join(dataDir, "sessions")
	os.MkdirAll(dir, 0o755)
	return &Manager{
		sessionsDir: dir,
		cache:       make(map[string]*Session),
	}
}

// WithCache attaches a write-through cache. Returns the manager.
func (m *Manager) WithCache(c Cache) *Manager {
	m.cacheStore = c
	return m
}

// GetOrCreate returns an existing session or creates a new one.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}

	s := m.load(key)
	if s == nil && m.cacheStore != nil {
		if cached, ok := m.cacheStore.GetSession(key); ok {
			s = cached
		}
	}
	if s == nil {
		s = &Session{
			Key:       key,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}
	m.cache[key] = s
	return s
}

// Save persists a session as JSONL: a metadata line followed by one line
// per message.
func (m *Manager) Save(s *Session) error {
	path := m.sessionPath(s.Key)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	meta := map[string]any{
		"_type":             "metadata",
		"key":               s.Key,
		"created_at":        s.CreatedAt.Format(time.RFC3339),
		"updated_at":        s.UpdatedAt.Format(time.RFC3339),
		"last_consolidated": s.LastConsolidated,
	}
	metaLine, _ := json.Marshal(meta)
	f.Write(metaLine)
	f.WriteString("\n")

	for _, msg := range s.Messages {
		line, _ := json.Marshal(msg)
		f.Write(line)
		f.WriteString("\n")
	}

	m.mu.Lock()
	m.cache[s.Key] = s
	m.mu.Unlock()

	if m.cacheStore != nil {
		m.cacheStore.PutSession(s)
	}
	return nil
}

// Invalidate removes a session from the in-memory cache.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	delete(m.cache, key)
	m.mu.Unlock()
}

// ListSessions returns metadata about all stored sessions.
func (m *Manager) ListSessions() []map[string]string {
	var result []map[string]string

	entries, err := os.ReadDir(m.sessionsDir)
	if err != nil {
		return result
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(m.sessionsDir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(f)
		if scanner.Scan() {
			var meta map[string]any
			if json.Unmarshal([]byte(scanner.Text()), &meta) == nil && meta["_type"] == "metadata" {
				key, _ := meta["key"].(string)
				if key == "" {
					key = strings.ReplaceAll(strings.TrimSuffix(entry.Name(), ".jsonl"), "_", ":")
				}
				info := map[string]string{"key": key, "path": path}
				if v, ok := meta["created_at"].(string); ok {
					info["created_at"] = v
				}
				if v, ok := meta["updated_at"].(string); ok {
					info["updated_at"] = v
				}
				result = append(result, info)
			}
		}
		f.Close()
	}
	return result
}

func (m *Manager) sessionPath(key string) string {
	safe := utils.SafeFilename(strings.ReplaceAll(key, ":", "_"))
	return filepath.Join(m.sessionsDir, safe+".jsonl")
}

func (m *Manager) load(key string) *Session {
	f, err := os.Open(m.sessionPath(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	var msgs []Message
	var createdAt, updatedAt time.Time
	var lastConsolidated int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw map[string]any
		if json.Unmarshal([]byte(line), &raw) != nil {
			continue
		}
		if raw["_type"] == "metadata" {
			if v, ok := raw["created_at"].(string); ok {
				createdAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["updated_at"].(string); ok {
				updatedAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["last_consolidated"].(float64); ok {
				lastConsolidated = int(v)
			}
			continue
		}

		var msg Message
		if json.Unmarshal([]byte(line), &msg) == nil {
			msgs = append(msgs, msg)
		}
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	return &Session{
		Key:              key,
		Messages:         msgs,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		LastConsolidated: lastConsolidated,
	}
}
