package authn

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/upb/mcp-auth-gateway/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenCache_GetSet(t *testing.T) {
	cache := NewTokenCache(10, 5*time.Minute)
	p := models.NewPrincipal("u1", "alice", "", "", []string{"a"})

	assert.Nil(t, cache.Get("tok"))

	cache.Set("tok", p, time.Time{})
	assert.Equal(t, p, cache.Get("tok"))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
}

func TestTokenCache_TTLExpiration(t *testing.T) {
	clock := newFakeClock()
	cache := NewTokenCache(10, 300*time.Second)
	cache.now = clock.Now

	cache.Set("tok", models.NewPrincipal("u1", "", "", "", nil), time.Time{})

	clock.Advance(300 * time.Second)
	assert.NotNil(t, cache.Get("tok"), "entry at exactly TTL is still served")

	clock.Advance(time.Second)
	assert.Nil(t, cache.Get("tok"))
	assert.Equal(t, 0, cache.Len())
}

func TestTokenCache_RecordExpiryBeatsTTL(t *testing.T) {
	clock := newFakeClock()
	cache := NewTokenCache(10, time.Hour)
	cache.now = clock.Now

	cache.Set("tok", models.NewPrincipal("u1", "", "", "", nil), clock.Now().Add(10*time.Second))

	clock.Advance(5 * time.Second)
	assert.NotNil(t, cache.Get("tok"))

	clock.Advance(6 * time.Second)
	assert.Nil(t, cache.Get("tok"))
}

func TestTokenCache_LRUEviction(t *testing.T) {
	cache := NewTokenCache(2, time.Minute)

	cache.Set("a", models.NewPrincipal("a", "", "", "", nil), time.Time{})
	cache.Set("b", models.NewPrincipal("b", "", "", "", nil), time.Time{})

	// touch a so b becomes least recently used
	assert.NotNil(t, cache.Get("a"))

	cache.Set("c", models.NewPrincipal("c", "", "", "", nil), time.Time{})

	assert.NotNil(t, cache.Get("a"))
	assert.Nil(t, cache.Get("b"))
	assert.NotNil(t, cache.Get("c"))
	assert.Equal(t, 2, cache.Len())
}

func TestTokenCache_SetRefreshesEntry(t *testing.T) {
	clock := newFakeClock()
	cache := NewTokenCache(10, time.Minute)
	cache.now = clock.Now

	cache.Set("tok", models.NewPrincipal("old", "", "", "", nil), time.Time{})
	clock.Advance(50 * time.Second)
	cache.Set("tok", models.NewPrincipal("new", "", "", "", nil), time.Time{})
	clock.Advance(50 * time.Second)

	p := cache.Get("tok")
	if assert.NotNil(t, p) {
		assert.Equal(t, "new", p.ID)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestTokenCache_InvalidateAndClear(t *testing.T) {
	cache := NewTokenCache(10, time.Minute)
	cache.Set("a", models.NewPrincipal("a", "", "", "", nil), time.Time{})
	cache.Set("b", models.NewPrincipal("b", "", "", "", nil), time.Time{})

	cache.Invalidate("a")
	assert.Nil(t, cache.Get("a"))
	assert.Equal(t, 1, cache.Len())

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func TestTokenCache_CleanupExpired(t *testing.T) {
	clock := newFakeClock()
	cache := NewTokenCache(10, time.Minute)
	cache.now = clock.Now

	cache.Set("old", models.NewPrincipal("old", "", "", "", nil), time.Time{})
	clock.Advance(2 * time.Minute)
	cache.Set("fresh", models.NewPrincipal("fresh", "", "", "", nil), time.Time{})

	assert.Equal(t, 1, cache.CleanupExpired())
	assert.Equal(t, 1, cache.Len())
	assert.NotNil(t, cache.Get("fresh"))
}

func TestTokenCache_CleanupWorkerStops(t *testing.T) {
	cache := NewTokenCache(10, time.Millisecond)
	cache.Set("tok", models.NewPrincipal("u", "", "", "", nil), time.Time{})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleanupWorker(5*time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Len() == 0 }, time.Second, 5*time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	cache := NewTokenCache(50, time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				token := fmt.Sprintf("tok-%d-%d", i, j%20)
				cache.Set(token, models.NewPrincipal(token, "", "", "", nil), time.Time{})
				cache.Get(token)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Len(), 50)
}
