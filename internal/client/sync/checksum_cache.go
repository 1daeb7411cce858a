package sync

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/treesync/internal/treepath"
)

const defaultChecksumCacheSize = 16384

// ChecksumCache remembers remote checksums computed during one sync run, so
// a checksum the store had to compute for the diff is not computed again for
// post-transfer verification. A cache must not be shared between runs.
// A nil cache disables caching.
type ChecksumCache struct {
	cache *lru.Cache[string, string]
}

func NewChecksumCache(size int) *ChecksumCache {
	if size <= 0 {
		size = defaultChecksumCacheSize
	}
	cache, _ := lru.New[string, string](size)
	return &ChecksumCache{cache: cache}
}

func (c *ChecksumCache) Get(remotePath string) (string, bool) {
	if c == nil {
		return "", false
	}
	return c.cache.Get(remotePath)
}

func (c *ChecksumCache) Add(remotePath, checksum string) {
	if c == nil || checksum == "" {
		return
	}
	c.cache.Add(remotePath, checksum)
}

func (c *ChecksumCache) Invalidate(remotePath string) {
	if c == nil {
		return
	}
	c.cache.Remove(remotePath)
}

func (c *ChecksumCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// remoteChecksum returns the checksum of a remote data object, asking the
// store to compute it only when neither the walk nor the cache has one.
func (c *ChecksumCache) remoteChecksum(ctx context.Context, p treepath.Remote) (string, error) {
	if cached, ok := p.(*treepath.CachedRemotePath); ok && cached.CachedChecksum() != "" {
		return cached.CachedChecksum(), nil
	}
	if sum, ok := c.Get(p.Path()); ok {
		return sum, nil
	}

	sum, err := p.Checksum(ctx)
	if err != nil {
		return "", err
	}
	slog.Debug("remote checksum", "path", p.Path(), "checksum", sum)
	c.Add(p.Path(), sum)
	return sum, nil
}

// knownChecksum is remoteChecksum without ever triggering a computation.
func (c *ChecksumCache) knownChecksum(p treepath.Remote) string {
	if cached, ok := p.(*treepath.CachedRemotePath); ok && cached.CachedChecksum() != "" {
		return cached.CachedChecksum()
	}
	sum, _ := c.Get(p.Path())
	return sum
}
