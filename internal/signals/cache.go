package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/reroute/internal/model"
)

// Cached memoizes another source per query for a fixed TTL. Concurrent
// misses for the same query share one upstream call.
type Cached struct {
	src Source
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	flight  singleflight.Group
	now     func() time.Time
}

type cacheEntry struct {
	signals []model.Signal
	expires time.Time
}

// NewCached wraps src with a TTL cache.
func NewCached(src Source, ttl time.Duration) *Cached {
	return &Cached{
		src:     src,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *Cached) Name() string { return c.src.Name() }

// Fetch returns the cached result for q or fetches it. Errors are not cached.
func (c *Cached) Fetch(ctx context.Context, q Query) ([]model.Signal, error) {
	key := cacheKey(q)
	if sigs, ok := c.get(key); ok {
		return sigs, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if sigs, ok := c.get(key); ok {
			return sigs, nil
		}
		sigs, err := c.src.Fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{signals: sigs, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return sigs, nil
	})
	if err != nil {
		return nil, err
	}
	return copySignals(v.([]model.Signal)), nil
}

func (c *Cached) get(key string) ([]model.Signal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return copySignals(e.signals), true
}

func cacheKey(q Query) string {
	return fmt.Sprintf("%s|%s|%s|%d", q.Category, q.Region, q.PortCode, q.Limit)
}

func copySignals(in []model.Signal) []model.Signal {
	if in == nil {
		return nil
	}
	out := make([]model.Signal, len(in))
	copy(out, in)
	return out
}
