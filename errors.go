package gomediacache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when a fetch was aborted through its Token or context.
	// It is never wrapped in a FetchError.
	ErrCancelled = errors.New("fetch cancelled")
)

// IsCancelled reports whether err is the result of a cooperative cancellation
// rather than a genuine failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// FetchError is returned by Fetcher once every attempt for a URL has failed.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int    // zero when no response was received
	Body       []byte // body of the last non-2xx response, if any
	Err        error
}

func (fe *FetchError) Error() string {
	if fe.StatusCode != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d", fe.URL, fe.Attempts, fe.StatusCode)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", fe.URL, fe.Attempts, fe.Err)
}

func (fe *FetchError) Unwrap() error {
	return fe.Err
}

// DecodeError reports a response body that does not have the expected shape.
type DecodeError struct {
	Source string
	Reason string
	Err    error
}

func (de *DecodeError) Error() string {
	if de.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", de.Source, de.Reason, de.Err)
	}
	return fmt.Sprintf("decode %s: %s", de.Source, de.Reason)
}

func (de *DecodeError) Unwrap() error {
	return de.Err
}

// CacheIOError wraps a failure of the underlying Cache store.
type CacheIOError struct {
	Op  string // get, set or delete
	Key string
	Err error
}

func (ce *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", ce.Op, ce.Key, ce.Err)
}

func (ce *CacheIOError) Unwrap() error {
	return ce.Err
}
