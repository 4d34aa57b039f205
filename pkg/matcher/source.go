package matcher

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// Source reads candidate file content for matching.
// Content is returned as valid UTF-8: undecodable byte sequences are dropped,
// and all match offsets refer to the decoded text.
type Source interface {
	Read(path string) (string, error)
}

// FileSource reads straight from disk.
type FileSource struct{}

// Read implements Source.
func (FileSource) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// CacheConfig bounds a CachedSource.
type CacheConfig struct {
	Capacity     uint64        // maximum cached files (0 disables caching)
	MaxEntrySize int           // files larger than this are never cached
	TTL          time.Duration // lifetime of a cached file
}

// DefaultCacheConfig returns the cache bounds used by the CLI.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity:     256,
		MaxEntrySize: 1 << 20,
		TTL:          5 * time.Minute,
	}
}

// CachedSource shares decoded file content between rule units running at the
// same time. Concurrent reads of the same uncached path collapse into one disk
// read. Each unit still reads a given file at most once.
type CachedSource struct {
	next  Source
	cfg   CacheConfig
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

// NewCachedSource wraps next with a bounded TTL cache.
func NewCachedSource(next Source, cfg CacheConfig) *CachedSource {
	if next == nil {
		next = FileSource{}
	}
	return &CachedSource{
		next: next,
		cfg:  cfg,
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.TTL),
			ttlcache.WithCapacity[string, string](cfg.Capacity),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Read implements Source.
func (c *CachedSource) Read(path string) (string, error) {
	if c.cfg.Capacity == 0 {
		return c.next.Read(path)
	}
	if item := c.cache.Get(path); item != nil {
		return item.Value(), nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		content, err := c.next.Read(path)
		if err != nil {
			return "", err
		}
		if len(content) <= c.cfg.MaxEntrySize {
			c.cache.Set(path, content, ttlcache.DefaultTTL)
		}
		return content, nil
	})
	if err != nil {
		return "", err
	}

	content, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected cached value for %s", path)
	}
	return content, nil
}

// Len returns the number of cached files.
func (c *CachedSource) Len() int {
	return c.cache.Len()
}

// Close drops all cached content.
func (c *CachedSource) Close() {
	c.cache.DeleteAll()
}
