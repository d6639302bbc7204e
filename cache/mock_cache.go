package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ammiranda/knowledge_tree/models"
)

// MockCache is a cache provider that can be used for testing
type MockCache struct {
	mu              sync.RWMutex
	data            map[string]*models.TreeResponse
	expiry          map[string]time.Time
	ttl             time.Duration
	GetTreeCalls    int
	SetTreeCalls    int
	InvalidateCalls int
	SetTTLCalls     int
	InitCalls       int
	ShouldFail      bool
}

// NewMockCache creates a new mock cache provider
func NewMockCache() *MockCache {
	return &MockCache{
		ttl:    DefaultTTL,
		data:   make(map[string]*models.TreeResponse),
		expiry: make(map[string]time.Time),
	}
}

// ErrCacheInitialization is returned when the mock cache is configured to fail
var ErrCacheInitialization = errors.New("mock cache initialization failed")

// ErrCacheUnavailable is returned by invalidation when the mock is configured to fail
var ErrCacheUnavailable = errors.New("mock cache unavailable")

// Initialize performs any necessary setup for the cache provider
func (c *MockCache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitCalls++
	if c.ShouldFail {
		return ErrCacheInitialization
	}
	return nil
}

// GetTree retrieves the tree of ownerID if available
func (c *MockCache) GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls++

	if c.ShouldFail {
		return nil, false
	}
	tree, ok := c.data[ownerID]
	if !ok || time.Now().After(c.expiry[ownerID]) {
		return nil, false
	}
	return tree, true
}

// SetTree stores the tree of ownerID
func (c *MockCache) SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTreeCalls++

	if !c.ShouldFail {
		c.data[ownerID] = tree
		c.expiry[ownerID] = time.Now().Add(c.ttl)
	}
}

// InvalidateTree drops the tree of ownerID
func (c *MockCache) InvalidateTree(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidateCalls++

	if c.ShouldFail {
		return ErrCacheUnavailable
	}
	delete(c.data, ownerID)
	delete(c.expiry, ownerID)
	return nil
}

// InvalidateCache removes all cached data
func (c *MockCache) InvalidateCache(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InvalidateCalls++

	if c.ShouldFail {
		return ErrCacheUnavailable
	}
	c.data = make(map[string]*models.TreeResponse)
	c.expiry = make(map[string]time.Time)
	return nil
}

// SetCacheTTL sets the cache time-to-live duration
func (c *MockCache) SetCacheTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetTTLCalls++

	if !c.ShouldFail {
		c.ttl = ttl
		now := time.Now()
		for owner := range c.data {
			c.expiry[owner] = now.Add(ttl)
		}
	}
}

// Reset resets all counters and state
func (c *MockCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetTreeCalls = 0
	c.SetTreeCalls = 0
	c.InvalidateCalls = 0
	c.SetTTLCalls = 0
	c.InitCalls = 0
	c.ShouldFail = false
	c.data = make(map[string]*models.TreeResponse)
	c.expiry = make(map[string]time.Time)
}

// GetCallCounts returns the number of times each method was called
func (c *MockCache) GetCallCounts() (getTree, setTree, invalidate, setTTL, init int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GetTreeCalls, c.SetTreeCalls, c.InvalidateCalls, c.SetTTLCalls, c.InitCalls
}

// SetShouldFail makes the mock cache fail all operations
func (c *MockCache) SetShouldFail(shouldFail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShouldFail = shouldFail
}
