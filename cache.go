package gomediacache

import (
	"context"
	"time"
)

// CacheItem is a single stored media payload.
type CacheItem struct {
	Response    []byte
	ContentType string
	Expiration  time.Time // zero means the item never expires
}

// Expired reports whether the item is past its expiration at now.
func (ci *CacheItem) Expired(now time.Time) bool {
	if ci.Expiration.IsZero() {
		return false
	}
	return now.After(ci.Expiration)
}

// Cache is the persistent blob store a BlobCache is layered on. Keys are media URLs.
//
// Get returns caches.ErrNoCacheItem when the key is not present. Set must be
// all-or-nothing: a failed Set never leaves a partially written item behind.
// Implementations do not apply any expiration policy of their own to reads.
type Cache interface {
	Get(ctx context.Context, k string) (*CacheItem, error)
	Set(ctx context.Context, k string, v *CacheItem) error
	Delete(ctx context.Context, k string) error
}
