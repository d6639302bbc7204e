package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ammiranda/knowledge_tree/models"
)

type memoryEntry struct {
	tree   *models.TreeResponse
	expiry time.Time
}

// MemoryCache implements CacheProvider using in-memory storage
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	ttl  time.Duration
}

// NewMemoryCache creates a new in-memory cache provider
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		ttl:  DefaultTTL,
		data: make(map[string]memoryEntry),
	}
}

// Initialize performs any necessary setup for the cache provider
func (c *MemoryCache) Initialize(ctx context.Context) error {
	return nil
}

// GetTree retrieves the tree of ownerID if present and not expired
func (c *MemoryCache) GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[treeKey(ownerID)]
	if !ok || time.Now().After(entry.expiry) {
		return nil, false
	}
	return entry.tree, true
}

// SetTree stores the tree of ownerID
func (c *MemoryCache) SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[treeKey(ownerID)] = memoryEntry{tree: tree, expiry: time.Now().Add(c.ttl)}
}

// InvalidateTree drops the tree of ownerID
func (c *MemoryCache) InvalidateTree(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, treeKey(ownerID))
	return nil
}

// InvalidateCache removes all cached data
func (c *MemoryCache) InvalidateCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]memoryEntry)
	return nil
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MemoryCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ttl = ttl
	// Update all existing expiries
	now := time.Now()
	for key, entry := range c.data {
		entry.expiry = now.Add(ttl)
		c.data[key] = entry
	}
}
