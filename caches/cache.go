package caches

import "time"

var (
	// DefaultExpiredDuration is how long backends that support native expiry keep an item
	// around. It is independent of the expiration policy applied by the BlobCache.
	DefaultExpiredDuration = 7 * 24 * time.Hour

	// DefaultExpiredTaskTimer is the default duration of the expired task timer
	DefaultExpiredTaskTimer = 10 * time.Minute
)
