package authn

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/mcp-auth-gateway/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	token      string
	principal  *models.Principal
	expiresAt  time.Time // record expiry, zero when the token never expires
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has aged out or its token has passed expiry
func (e *cacheEntry) isExpired(ttl time.Duration, now time.Time) bool {
	if now.Sub(e.insertedAt) > ttl {
		return true
	}
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// TokenCache is an in-memory LRU cache with TTL for resolved API tokens.
// Revoked tokens stay valid here until their entry ages out.
type TokenCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// NewTokenCache creates a new TokenCache with specified max size and TTL
func NewTokenCache(maxSize int, ttl time.Duration) *TokenCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &TokenCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached principal for token, or nil if absent or expired
func (c *TokenCache) Get(token string) *models.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[token]
	if !exists || entry.isExpired(c.ttl, c.now()) {
		c.misses++
		if exists {
			c.removeEntry(token)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.principal
}

// Set stores the principal for token. expiresAt is the record's own expiry, or zero.
func (c *TokenCache) Set(token string, principal *models.Principal, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[token]; exists {
		entry.principal = principal
		entry.expiresAt = expiresAt
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		token:      token,
		principal:  principal,
		expiresAt:  expiresAt,
		insertedAt: c.now(),
	}
	entry.element = c.lruList.PushFront(token)
	c.entries[token] = entry
}

// Invalidate removes a specific token
func (c *TokenCache) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(token)
}

// Clear removes all entries from the cache
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// Len returns the number of entries, expired ones included until swept
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// Stats returns cache statistics
func (c *TokenCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: c.calculateHitRate(),
	}
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func (c *TokenCache) calculateHitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// removeEntry must be called with lock held
func (c *TokenCache) removeEntry(token string) {
	if entry, exists := c.entries[token]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, token)
	}
}

// evictLRU must be called with lock held
func (c *TokenCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	token := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, token)
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *TokenCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	expired := make([]string, 0)
	for token, entry := range c.entries {
		if entry.isExpired(c.ttl, now) {
			expired = append(expired, token)
		}
	}
	for _, token := range expired {
		c.removeEntry(token)
	}
	return len(expired)
}

// StartCleanupWorker sweeps expired entries every interval until stopCh closes
func (c *TokenCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
