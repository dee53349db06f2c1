// Package editcache holds short-lived manual edit sessions. A session pins
// the cast snapshot a reviewer started from, so a stale browser tab cannot
// commit over a cast that changed underneath it.
package editcache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/playbill/internal/reconcile"
)

const (
	defaultTTL     = 30 * time.Minute
	defaultMaxSize = 64
	sweepInterval  = 5 * time.Minute
)

// Session is one open manual edit.
type Session struct {
	Token     string              `json:"token"`
	Cast      *reconcile.EditCast `json:"cast"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Cache is a bounded in-memory session store with TTL expiry.
type Cache struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byItem   map[string]string
	ttl      time.Duration
	maxSize  int
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache and starts its expiry sweeper. ttl and maxSize fall
// back to defaults when non-positive.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	c := &Cache{
		sessions: make(map[string]*Session),
		byItem:   make(map[string]string),
		ttl:      ttl,
		maxSize:  maxSize,
		stop:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Open starts a session for an item and returns its token. An existing
// session for the same item is replaced.
func (c *Cache) Open(cast *reconcile.EditCast) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byItem[cast.ItemID]; ok {
		delete(c.sessions, old)
	}
	if len(c.sessions) >= c.maxSize {
		c.evictOldestLocked()
	}

	now := time.Now()
	s := &Session{
		Token:     uuid.NewString(),
		Cast:      cast,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	c.sessions[s.Token] = s
	c.byItem[cast.ItemID] = s.Token
	return s
}

// Get returns the session for token, or nil if it is unknown or expired.
func (c *Cache) Get(token string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[token]
	if !ok {
		return nil
	}
	if time.Now().After(s.ExpiresAt) {
		c.removeLocked(s)
		return nil
	}
	return s
}

// Close ends a session, normally after its edit was applied.
func (c *Cache) Close(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[token]; ok {
		c.removeLocked(s)
	}
}

// Stop terminates the expiry sweeper.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Len reports the number of live sessions.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Cache) removeLocked(s *Session) {
	delete(c.sessions, s.Token)
	if c.byItem[s.Cast.ItemID] == s.Token {
		delete(c.byItem, s.Cast.ItemID)
	}
}

func (c *Cache) evictOldestLocked() {
	var oldest *Session
	for _, s := range c.sessions {
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest != nil {
		c.removeLocked(oldest)
	}
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for _, s := range c.sessions {
				if now.After(s.ExpiresAt) {
					c.removeLocked(s)
				}
			}
			c.mu.Unlock()
		}
	}
}
