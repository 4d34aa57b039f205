package matcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	reads atomic.Int64
	data  map[string]string
}

func (c *countingSource) Read(path string) (string, error) {
	c.reads.Add(1)
	content, ok := c.data[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func TestFileSource_DropsInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin.dat")
	require.NoError(t, os.WriteFile(path, []byte("ab\xffcd\xfe"), 0644))

	content, err := FileSource{}.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "abcd", content)
}

func TestFileSource_MissingFile(t *testing.T) {
	_, err := FileSource{}.Read(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCachedSource_HitsCache(t *testing.T) {
	next := &countingSource{data: map[string]string{"/a": "alpha"}}
	c := NewCachedSource(next, DefaultCacheConfig())
	defer c.Close()

	for i := 0; i < 5; i++ {
		content, err := c.Read("/a")
		require.NoError(t, err)
		assert.Equal(t, "alpha", content)
	}

	assert.Equal(t, int64(1), next.reads.Load())
	assert.Equal(t, 1, c.Len())
}

func TestCachedSource_ErrorsNotCached(t *testing.T) {
	next := &countingSource{data: map[string]string{}}
	c := NewCachedSource(next, DefaultCacheConfig())

	_, err := c.Read("/missing")
	require.Error(t, err)
	_, err = c.Read("/missing")
	require.Error(t, err)

	assert.Equal(t, int64(2), next.reads.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedSource_LargeFilesBypassCache(t *testing.T) {
	next := &countingSource{data: map[string]string{"/big": "0123456789"}}
	cfg := DefaultCacheConfig()
	cfg.MaxEntrySize = 4
	c := NewCachedSource(next, cfg)

	_, err := c.Read("/big")
	require.NoError(t, err)
	_, err = c.Read("/big")
	require.NoError(t, err)

	assert.Equal(t, int64(2), next.reads.Load())
}

func TestCachedSource_ZeroCapacityDisablesCache(t *testing.T) {
	next := &countingSource{data: map[string]string{"/a": "alpha"}}
	c := NewCachedSource(next, CacheConfig{})

	_, _ = c.Read("/a")
	_, _ = c.Read("/a")

	assert.Equal(t, int64(2), next.reads.Load())
}

func TestCachedSource_ConcurrentReaders(t *testing.T) {
	next := &countingSource{data: map[string]string{"/a": "alpha", "/b": "beta"}}
	c := NewCachedSource(next, DefaultCacheConfig())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/a"
			if i%2 == 1 {
				path = "/b"
			}
			content, err := c.Read(path)
			assert.NoError(t, err)
			assert.NotEmpty(t, content)
		}(i)
	}
	wg.Wait()

	// singleflight + cache: never more reads than concurrent first callers
	assert.LessOrEqual(t, next.reads.Load(), int64(32))
	assert.Equal(t, 2, c.Len())
}
