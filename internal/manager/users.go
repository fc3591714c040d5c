package manager

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultUserCacheTTL is how long CachedUserDirectory keeps a name.
const DefaultUserCacheTTL = 5 * time.Minute

// CachedUserDirectory caches display names from another UserDirectory.
// Listings resolve the same few users for many entities; failed lookups
// are not cached.
type CachedUserDirectory struct {
	next  UserDirectory
	names *cache.Cache
}

// NewCachedUserDirectory wraps next with a TTL cache. A non-positive ttl
// selects DefaultUserCacheTTL.
func NewCachedUserDirectory(next UserDirectory, ttl time.Duration) *CachedUserDirectory {
	if ttl <= 0 {
		ttl = DefaultUserCacheTTL
	}
	return &CachedUserDirectory{
		next:  next,
		names: cache.New(ttl, 2*ttl),
	}
}

// DisplayName returns the cached name, or asks the wrapped directory.
func (c *CachedUserDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if v, ok := c.names.Get(userID); ok {
		if name, ok := v.(string); ok {
			return name, nil
		}
	}

	name, err := c.next.DisplayName(ctx, userID)
	if err != nil {
		return "", err
	}
	c.names.SetDefault(userID, name)
	return name, nil
}

// Forget drops a cached name.
func (c *CachedUserDirectory) Forget(userID string) {
	c.names.Delete(userID)
}
