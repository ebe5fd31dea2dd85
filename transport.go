package gomediacache

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

const (
	headerContentLength = "Content-Length"
	headerXCache        = "X-Cache"
)

// CacheTransport implements http.RoundTripper and serves GET requests from a
// BlobCache. Any other method is handed to the wrapped RoundTripper untouched.
type CacheTransport struct {
	Wrapped http.RoundTripper

	cache  *BlobCache
	logger *slog.Logger
}

// RoundTrip implements http.RoundTripper. The response for a GET is built from the
// cached blob; a cancelled request returns ErrCancelled and a failed fetch returns
// the FetchError as is.
func (c *CacheTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Method != http.MethodGet {
		return c.Wrapped.RoundTrip(r)
	}

	ctx := r.Context()
	url := r.URL.String()

	blob, err := c.cache.Get(ctx, url)
	if err != nil {
		if !IsCancelled(err) {
			c.logger.WarnContext(ctx, "error serving media", "cache", c.cache.Name(), "url", url, "error", err)
		}
		return nil, err
	}

	header := make(http.Header)
	if blob.ContentType != "" {
		header.Set(headerContentType, blob.ContentType)
	}
	header.Set(headerContentLength, strconv.Itoa(len(blob.Data)))
	header.Set(headerXCache, c.cache.Name())

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(blob.Data)),
		ContentLength: int64(len(blob.Data)),
		Request:       r,
	}, nil
}

// New creates a transport middleware that serves media through the given BlobCache.
//
// If the 'logger' is nil, a no-op logger writing to io.Discard will be used.
func New(cache *BlobCache, logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(rt http.RoundTripper) http.RoundTripper {
		if rt == nil {
			rt = http.DefaultTransport
		}
		return &CacheTransport{Wrapped: rt, cache: cache, logger: logger}
	}
}
