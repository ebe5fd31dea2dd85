// Package gif implements the GIF picker: paged, debounced and cancellable search
// sessions against a Tenor-compatible API, with thumbnails served through a
// gomediacache.BlobCache.
package gif

import (
	"context"
	"errors"
	"fmt"
	"time"

	gomediacache "github.com/dgduncan/go-media-cache"
)

var (
	// ErrSessionClosed is returned by every Session operation after Close.
	ErrSessionClosed = errors.New("gif: session closed")

	// ErrItemNotFound is returned by Select for an id that is not loaded.
	ErrItemNotFound = errors.New("gif: item not found")

	// ErrMissingAPIKey is returned by NewClient when no API key is configured.
	ErrMissingAPIKey = errors.New("gif: missing api key")
)

// APIError is an error reported by the search provider in its response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (ae *APIError) Error() string {
	if ae.StatusCode != 0 {
		return fmt.Sprintf("gif search failed (status %d): %s", ae.StatusCode, ae.Message)
	}
	return "gif search failed: " + ae.Message
}

// Item is one search result. Items are never modified once decoded.
type Item struct {
	ExternalID   string `json:"id"`
	ThumbnailURL string `json:"thumbnail_url"`
	Description  string `json:"description"`
}

// Page is a decoded search response. An empty Next means there are no further pages.
type Page struct {
	Items []Item
	Next  string
}

// Query describes one page request. An empty Text requests featured results.
type Query struct {
	Text  string
	Pos   string
	Limit int
}

// Searcher runs a page request against the search provider.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Page, error)
}

// MediaLoader resolves a thumbnail URL to its bytes.
type MediaLoader interface {
	Get(ctx context.Context, url string) (*gomediacache.Blob, error)
}

// Config controls layout and pacing of a Session.
type Config struct {
	// Breakpoints maps a minimum container width to a column count.
	Breakpoints Breakpoints

	// PageFactor multiplied by the column count gives the page size.
	PageFactor int

	// DebounceDelay is the quiet period for Input and Resize.
	DebounceDelay time.Duration

	// ScrollThreshold is the fraction of the scrollable height that must be
	// reached before LoadMore requests the next page.
	ScrollThreshold float64
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Breakpoints:     DefaultBreakpoints(),
		PageFactor:      5,
		DebounceDelay:   750 * time.Millisecond,
		ScrollThreshold: 0.9,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Breakpoints) == 0 {
		c.Breakpoints = d.Breakpoints
	}
	if c.PageFactor <= 0 {
		c.PageFactor = d.PageFactor
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = d.DebounceDelay
	}
	if c.ScrollThreshold <= 0 || c.ScrollThreshold > 1 {
		c.ScrollThreshold = d.ScrollThreshold
	}
	return c
}
