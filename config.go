package gomediacache

import "time"

const (
	// DefaultTTL is how long fetched media stays fresh unless configured otherwise.
	DefaultTTL = 6 * time.Hour

	ContentTypeWebP = "image/webp"
	ContentTypeMPEG = "audio/mpeg"
)

// Config controls how a BlobCache stores what it fetches.
type Config struct {
	// Name identifies the cache in logs and metrics, eg. "gifs".
	Name string

	// TTL is added to the fetch time to compute an item's expiration. A TTL of
	// zero or less stores items without expiration; they live until evicted.
	TTL time.Duration

	// ContentType, when set, overrides the Content-Type reported by the origin.
	ContentType string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Name: "media",
		TTL:  DefaultTTL,
	}
}

// GIFConfig is used for animated images. GIF URLs are content addressed by the
// provider so entries never expire.
func GIFConfig() Config {
	return Config{
		Name: "gifs",
	}
}

// ImageConfig is used for preloaded document images.
func ImageConfig() Config {
	return Config{
		Name:        "images",
		TTL:         DefaultTTL,
		ContentType: ContentTypeWebP,
	}
}

// AudioConfig is used for the background audio track.
func AudioConfig() Config {
	return Config{
		Name:        "audio",
		TTL:         DefaultTTL,
		ContentType: ContentTypeMPEG,
	}
}

// RetryConfig controls the linear backoff of a Fetcher.
type RetryConfig struct {
	MaxRetries     int           // retries after the first attempt
	InitialDelay   time.Duration // wait before the first retry
	DelayIncrement time.Duration // added to the wait after every retry
}

// DefaultRetryConfig returns 3 retries waiting 1s, 2s and 3s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		DelayIncrement: 1 * time.Second,
	}
}
