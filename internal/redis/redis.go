// Package redis provides an optional Redis layer for session state and
// general caching.
//
// Graceful fallback: if Redis is unavailable, operations silently return
// zero values instead of blocking the business logic.
package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crewgate/crewgate/internal/session"
)

// Key prefixes.
const (
	KeySession = "session:" // Conversation session state
	KeyCache   = "cache:"   // General cache
)

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

// shared holds the process-wide client; nil means not connected.
var shared atomic.Pointer[redis.Client]

// Init initializes the Redis connection. Returns true if connected.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		log.Println("[Redis] URL not configured, skipping init")
		return false
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Printf("[Redis] Invalid URL: %v", err)
		return false
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3

	c := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		log.Printf("[Redis] Connection failed: %v", err)
		return false
	}

	shared.Store(c)
	log.Println("[Redis] Connected")
	return true
}

// Close closes the Redis connection.
func Close() {
	if c := shared.Swap(nil); c != nil {
		c.Close()
		log.Println("[Redis] Connection closed")
	}
}

// Client returns the Redis client, or nil when not connected.
func Client() *redis.Client {
	return shared.Load()
}

// IsAvailable checks if Redis is connected.
func IsAvailable() bool {
	return shared.Load() != nil
}

// --- Cache operations (with graceful fallback) ---

// CacheGet reads a string value. Returns "" if unavailable.
func CacheGet(ctx context.Context, key string) string {
	c := Client()
	if c == nil {
		return ""
	}
	val, err := c.Get(ctx, key).Result()
	switch {
	case err == redis.Nil:
		return ""
	case err != nil:
		log.Printf("[Redis] get failed (%s): %v", key, err)
		return ""
	}
	return val
}

// CacheSet writes a string value with TTL. Returns false on failure.
func CacheSet(ctx context.Context, key, value string, ttl time.Duration) bool {
	c := Client()
	if c == nil {
		return false
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[Redis] set failed (%s): %v", key, err)
		return false
	}
	return true
}

// CacheDel deletes a key. Returns false on failure.
func CacheDel(ctx context.Context, key string) bool {
	c := Client()
	if c == nil {
		return false
	}
	if err := c.Del(ctx, key).Err(); err != nil {
		log.Printf("[Redis] del failed (%s): %v", key, err)
		return false
	}
	return true
}

// CacheGetJSON reads a JSON value into out. Returns false if not found/error.
func CacheGetJSON(ctx context.Context, key string, out any) bool {
	raw := CacheGet(ctx, key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("[Redis] json parse failed (%s): %v", key, err)
		return false
	}
	return true
}

// CacheSetJSON writes a JSON-serialized value with TTL.
func CacheSetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[Redis] json marshal failed (%s): %v", key, err)
		return false
	}
	return CacheSet(ctx, key, string(data), ttl)
}

// SessionTTL is how long cached session state lives without writes.
const SessionTTL = 24 * time.Hour

// SessionCache adapts the Redis layer to the session manager's write-through
// cache. Safe to use even when Redis never connected.
type SessionCache struct{}

// NewSessionCache returns a session cache backed by the shared client.
func NewSessionCache() *SessionCache { return &SessionCache{} }

type cachedSession struct {
	Key              string            `json:"key"`
	Messages         []session.Message `json:"messages"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	LastConsolidated int               `json:"last_consolidated"`
}

// GetSession loads a session from Redis.
func (s *SessionCache) GetSession(key string) (*session.Session, bool) {
	var cached cachedSession
	if !CacheGetJSON(context.Background(), KeySession+key, &cached) {
		return nil, false
	}
	return &session.Session{
		Key:              cached.Key,
		Messages:         cached.Messages,
		CreatedAt:        cached.CreatedAt,
		UpdatedAt:        cached.UpdatedAt,
		LastConsolidated: cached.LastConsolidated,
	}, true
}

// PutSession stores a session in Redis.
func (s *SessionCache) PutSession(sess *session.Session) {
	CacheSetJSON(context.Background(), KeySession+sess.Key, cachedSession{
		Key:              sess.Key,
		Messages:         sess.Messages,
		CreatedAt:        sess.CreatedAt,
		UpdatedAt:        sess.UpdatedAt,
		LastConsolidated: sess.LastConsolidated,
	}, SessionTTL)
}
