package fraud

import (
	"sync"
	"time"
)

// ScoreCache is a short-lived in-process cache of fraud scores. It is not a
// source of truth; entries may be dropped at any time.
type ScoreCache struct {
	mu     sync.RWMutex
	data   map[string]scoreEntry
	maxAge time.Duration
	done   chan struct{}
}

type scoreEntry struct {
	score    float64
	cachedAt time.Time
}

func NewScoreCache(maxAge time.Duration) *ScoreCache {
	cache := &ScoreCache{
		data:   make(map[string]scoreEntry),
		maxAge: maxAge,
		done:   make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

func (c *ScoreCache) Get(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists || time.Since(entry.cachedAt) > c.maxAge {
		return 0, false
	}
	return entry.score, true
}

func (c *ScoreCache) Set(key string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = scoreEntry{score: score, cachedAt: time.Now()}
}

// Close stops the cleanup goroutine.
func (c *ScoreCache) Close() {
	close(c.done)
}

func (c *ScoreCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.data {
				if now.Sub(entry.cachedAt) > c.maxAge {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
