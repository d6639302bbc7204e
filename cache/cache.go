package cache

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/ammiranda/knowledge_tree/models"
)

var (
	provider CacheProvider
	once     sync.Once
	mu       sync.RWMutex
)

// DefaultTTL is used until SetCacheTTL is called
const DefaultTTL = 5 * time.Minute

// CacheProvider defines the interface for cache implementations.
// It caches the tree read of one owner at a time.
type CacheProvider interface {
	// GetTree retrieves the cached tree of ownerID.
	// Returns false on a miss, an expired entry or any backend error.
	GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool)

	// SetTree stores the tree of ownerID. Failures are logged and swallowed.
	SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse)

	// InvalidateTree drops the cached tree of one owner.
	InvalidateTree(ctx context.Context, ownerID string) error

	// InvalidateCache removes all cached data.
	// This is called when a mutation may have touched several owners.
	InvalidateCache(ctx context.Context) error

	// SetCacheTTL sets the time-to-live of entries written from now on.
	SetCacheTTL(ttl time.Duration)

	// Initialize performs any necessary setup for the cache provider.
	// This may include establishing connections or creating tables.
	Initialize(ctx context.Context) error
}

// treeKey is the key every provider stores the tree of ownerID under
func treeKey(ownerID string) string {
	return "tree:" + ownerID
}

// Initialize sets up the cache provider. DYNAMODB_CACHE_TABLE selects
// DynamoDB, REDIS_HOST selects Redis, anything else the in-process cache.
// A provider already installed with SetProvider is kept.
func Initialize(ctx context.Context) error {
	var err error
	once.Do(func() {
		if current() != nil {
			return
		}
		var p CacheProvider
		switch {
		case os.Getenv("DYNAMODB_CACHE_TABLE") != "":
			p, err = NewDynamoDBCache(ctx, os.Getenv("DYNAMODB_CACHE_TABLE"))
			if err != nil {
				return
			}
		case os.Getenv("REDIS_HOST") != "":
			p = NewRedisCache()
		default:
			p = NewMemoryCache()
		}
		if err = p.Initialize(ctx); err != nil {
			return
		}
		mu.Lock()
		provider = p
		mu.Unlock()
	})
	return err
}

func current() CacheProvider {
	mu.RLock()
	defer mu.RUnlock()
	return provider
}

// GetTree retrieves the tree of ownerID from cache if available
func GetTree(ctx context.Context, ownerID string) (*models.TreeResponse, bool) {
	p := current()
	if p == nil {
		return nil, false
	}
	return p.GetTree(ctx, ownerID)
}

// SetTree stores the tree of ownerID in cache
func SetTree(ctx context.Context, ownerID string, tree *models.TreeResponse) {
	if p := current(); p != nil {
		p.SetTree(ctx, ownerID, tree)
	}
}

// InvalidateTree drops the cached tree of ownerID
func InvalidateTree(ctx context.Context, ownerID string) error {
	if p := current(); p != nil {
		return p.InvalidateTree(ctx, ownerID)
	}
	return nil
}

// InvalidateCache removes all cached data
func InvalidateCache(ctx context.Context) error {
	if p := current(); p != nil {
		return p.InvalidateCache(ctx)
	}
	return nil
}

// SetCacheTTL sets the cache time-to-live duration
func SetCacheTTL(ttl time.Duration) {
	if p := current(); p != nil {
		p.SetCacheTTL(ttl)
	}
}

// SetProvider allows changing the cache provider at runtime
func SetProvider(ctx context.Context, p CacheProvider) error {
	if err := p.Initialize(ctx); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	provider = p
	return nil
}

// ResetProvider resets the cache provider for testing
func ResetProvider() {
	mu.Lock()
	defer mu.Unlock()
	provider = nil
	once = sync.Once{}
}
