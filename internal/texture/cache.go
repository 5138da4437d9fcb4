package texture

import (
	"image"
	"sync"
)

// Source loads the image behind a resolved texture path, or decodes one
// embedded in another file.
type Source interface {
	Load(path string) (image.Image, error)
	Decode(raw []byte, name string) (image.Image, error)
}

// Cache is a concurrency-safe decode cache keyed by resolved path. Images
// larger than MaxSize on either side are downscaled once on load.
type Cache struct {
	MaxSize int

	mu    sync.RWMutex
	items map[string]*cacheEntry
}

type cacheEntry struct {
	img image.Image
	err error
}

// NewCache creates an empty cache.
func NewCache(maxSize int) *Cache {
	return &Cache{MaxSize: maxSize, items: make(map[string]*cacheEntry)}
}

// Load decodes path, or returns the earlier result for it. Failures are
// remembered too so a broken texture is only reported per use, not re-read.
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if entry, ok := c.items[path]; ok {
		c.mu.RUnlock()
		return entry.img, entry.err
	}
	c.mu.RUnlock()

	img, err := Load(path)
	if err == nil {
		img = Downscale(img, c.MaxSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.items[path]; ok {
		return entry.img, entry.err
	}
	c.items[path] = &cacheEntry{img: img, err: err}
	return img, err
}

// Decode decodes an embedded image and applies the same size limit as Load.
// Embedded images have no stable key, so they are not cached.
func (c *Cache) Decode(raw []byte, name string) (image.Image, error) {
	img, err := Decode(raw, name)
	if err != nil {
		return nil, err
	}
	return Downscale(img, c.MaxSize), nil
}

// Len reports how many paths have been loaded.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
