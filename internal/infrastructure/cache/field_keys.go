// Package cache holds in-process caches shared across tenant requests.
package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"audience/internal/domain/profile"
	"audience/pkg/logger"
)

// DefaultFieldKeyTTL bounds how stale a custom field list may get when a
// write happens on another instance.
const DefaultFieldKeyTTL = 5 * time.Minute

type fieldKeyEntry struct {
	keys    []string
	expires time.Time
}

// FieldKeys caches the custom field names in use per tenant. Local writes
// invalidate explicitly; entries also expire after the TTL.
type FieldKeys struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]fieldKeyEntry

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

var _ profile.FieldKeyCache = (*FieldKeys)(nil)

// NewFieldKeys creates the cache. ttl <= 0 means DefaultFieldKeyTTL.
func NewFieldKeys(ttl time.Duration) *FieldKeys {
	if ttl <= 0 {
		ttl = DefaultFieldKeyTTL
	}
	return &FieldKeys{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]fieldKeyEntry),
	}
}

// Get returns a copy of the cached keys for tenantID.
func (c *FieldKeys) Get(tenantID string) ([]string, bool) {
	c.mu.RLock()
	e, ok := c.entries[tenantID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return slices.Clone(e.keys), true
}

func (c *FieldKeys) Set(tenantID string, keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = fieldKeyEntry{keys: slices.Clone(keys), expires: c.now().Add(c.ttl)}
}

func (c *FieldKeys) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

// Len reports how many tenants have an entry, expired or not.
func (c *FieldKeys) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *FieldKeys) sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for tenantID, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, tenantID)
			removed++
		}
	}
	return removed
}

// Start runs a janitor that drops expired entries every TTL. Calling Start
// twice is a no-op.
func (c *FieldKeys) Start(ctx context.Context) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.sweep(); n > 0 {
					logger.Debug(ctx, "field key cache swept", "removed", n)
				}
			}
		}
	}()
}

// Stop ends the janitor and waits for it to exit.
func (c *FieldKeys) Stop() {
	c.lifecycleMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
