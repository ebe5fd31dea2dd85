package local

import (
	"context"
	"sync"

	gomediacache "github.com/dgduncan/go-media-cache"
	"github.com/dgduncan/go-media-cache/caches"
)

// BasicCache is an in-memory gomediacache.Cache. It does not survive restarts
// and is meant for tests and single-process deployments.
type BasicCache struct {
	cache map[string]gomediacache.CacheItem

	lock sync.RWMutex
}

func (bc *BasicCache) Get(_ context.Context, key string) (*gomediacache.CacheItem, error) {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	val, found := bc.cache[key]
	if !found {
		return nil, caches.ErrNoCacheItem
	}

	return &val, nil
}

func (bc *BasicCache) Set(_ context.Context, key string, item *gomediacache.CacheItem) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	bc.cache[key] = *item

	return nil
}

func (bc *BasicCache) Delete(_ context.Context, key string) error {
	bc.lock.Lock()
	defer bc.lock.Unlock()

	delete(bc.cache, key)

	return nil
}

// Len returns the number of stored items.
func (bc *BasicCache) Len() int {
	bc.lock.RLock()
	defer bc.lock.RUnlock()

	return len(bc.cache)
}

func NewBasicCache() *BasicCache {
	return &BasicCache{
		cache: make(map[string]gomediacache.CacheItem),
	}
}
