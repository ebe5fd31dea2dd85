package gomediacache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgduncan/go-media-cache/caches"
)

// Blob is the in-memory handle for a resolved URL. Callers may hold on to it and
// reuse it without going back to the store. It must not be modified.
type Blob struct {
	URL         string
	ContentType string
	Data        []byte
}

// BlobCache serves media bytes from a persistent Cache, populating it through a
// Fetcher on a miss or once a stored item has expired.
type BlobCache struct {
	cache   Cache
	fetcher *Fetcher
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time

	c Config

	mu      sync.RWMutex
	handles map[string]*Blob

	group singleflight.Group
}

// Get returns the media stored under url.
//
// The process-local handle map is consulted first, so a URL is read from the store
// at most once per BlobCache. Otherwise:
//  1. Looks the URL up in the store
//  2. Returns the stored payload if it has not expired
//  3. Deletes an expired item and continues as if it was absent
//  4. Fetches an absent item and stores it with expiration now+TTL
//
// Concurrent callers for the same URL share a single load.
func (bc *BlobCache) Get(ctx context.Context, url string) (*Blob, error) {
	if b, ok := bc.handle(url); ok {
		bc.metrics.Hit()
		return b, nil
	}

	for {
		ch := bc.group.DoChan(url, func() (any, error) {
			return bc.load(ctx, url)
		})

		select {
		case <-ctx.Done():
			return nil, ErrCancelled
		case res := <-ch:
			if res.Err != nil {
				// the shared load belonged to a caller that has since gone away
				if IsCancelled(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(*Blob), nil
		}
	}
}

func (bc *BlobCache) load(ctx context.Context, url string) (*Blob, error) {
	if b, ok := bc.handle(url); ok {
		return b, nil
	}

	item, err := bc.cache.Get(ctx, url)
	switch {
	case err == nil && !item.Expired(bc.now()):
		bc.metrics.Hit()
		bc.logger.DebugContext(ctx, "cache item found", "cache", bc.c.Name, "url", url)
		return bc.remember(&Blob{URL: url, ContentType: item.ContentType, Data: item.Response}), nil
	case err == nil:
		bc.metrics.Expired()
		bc.logger.DebugContext(ctx, "cache item expired, refreshing",
			"cache", bc.c.Name,
			"url", url,
			"expiration", item.Expiration.Format(time.RFC3339))

		if delErr := bc.cache.Delete(ctx, url); delErr != nil {
			return nil, &CacheIOError{Op: "delete", Key: url, Err: delErr}
		}
	case errors.Is(err, caches.ErrNoCacheItem):
		bc.metrics.Miss()
		bc.logger.DebugContext(ctx, "cache item not found", "cache", bc.c.Name, "url", url)
	default:
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, &CacheIOError{Op: "get", Key: url, Err: err}
	}

	resp, err := bc.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	contentType := resp.ContentType
	if bc.c.ContentType != "" {
		contentType = bc.c.ContentType
	}

	var expiration time.Time
	if bc.c.TTL > 0 {
		expiration = bc.now().UTC().Add(bc.c.TTL)
	}

	bc.logger.DebugContext(ctx, "caching response", "cache", bc.c.Name, "url", url, "expiration", expiration)
	if err := bc.cache.Set(ctx, url, &CacheItem{
		Response:    resp.Body,
		ContentType: contentType,
		Expiration:  expiration,
	}); err != nil {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, &CacheIOError{Op: "set", Key: url, Err: err}
	}

	return bc.remember(&Blob{URL: url, ContentType: contentType, Data: resp.Body}), nil
}

func (bc *BlobCache) handle(url string) (*Blob, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	b, ok := bc.handles[url]
	return b, ok
}

func (bc *BlobCache) remember(b *Blob) *Blob {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.handles[b.URL] = b
	return b
}

// Forget drops the in-memory handle for url. The stored item is kept.
func (bc *BlobCache) Forget(url string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	delete(bc.handles, url)
}

// Evict drops both the in-memory handle and the stored item for url.
func (bc *BlobCache) Evict(ctx context.Context, url string) error {
	bc.Forget(url)

	if err := bc.cache.Delete(ctx, url); err != nil {
		return &CacheIOError{Op: "delete", Key: url, Err: err}
	}
	return nil
}

// Name returns the configured cache name.
func (bc *BlobCache) Name() string {
	return bc.c.Name
}

// NewBlobCache creates a BlobCache over the given store.
//
// If fetcher is nil, a Fetcher with default settings is used. If opts is nil,
// DefaultConfig is used. If the 'now' function is nil, time.Now will be used as the
// default time provider. If the 'logger' is nil, a no-op logger writing to io.Discard
// will be used. If metrics is nil, NoopMetrics is used.
func NewBlobCache(
	cache Cache,
	fetcher *Fetcher,
	opts *Config,
	now func() time.Time,
	logger *slog.Logger,
	metrics Metrics,
) *BlobCache {
	nowFunc := now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if metrics == nil {
		metrics = NoopMetrics{}
	}

	if fetcher == nil {
		fetcher = NewFetcher(nil, nil, logger, metrics)
	}

	c := Config{}
	if opts == nil {
		c = DefaultConfig()
	} else {
		c = *opts
	}

	return &BlobCache{
		cache:   cache,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		now:     nowFunc,
		c:       c,
		handles: make(map[string]*Blob),
	}
}
