package gomediacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const headerContentType = "Content-Type"

// Response is the outcome of a successful fetch.
type Response struct {
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
}

// Fetcher downloads a resource as a blob, retrying failed attempts with a
// linearly increasing delay.
type Fetcher struct {
	client  *http.Client
	logger  *slog.Logger
	metrics Metrics

	c RetryConfig

	// wait blocks for d or until ctx is done. Replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// statusError is the per-attempt failure for a non-2xx response.
type statusError struct {
	code int
	body []byte
}

func (se *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", se.code)
}

// Fetch performs a GET of url. A failed attempt is retried while retries remain,
// waiting InitialDelay before the first retry and DelayIncrement longer before each
// following one. When every attempt fails a *FetchError is returned.
//
// If ctx is cancelled before the fetch settles the result is ErrCancelled, even
// when the transport itself failed; no further attempts are made.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	delay := f.c.InitialDelay

	for attempt := 1; ; attempt++ {
		resp, err := f.do(ctx, url)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil {
			f.logger.DebugContext(ctx, "fetch cancelled", "url", url, "attempt", attempt)
			return nil, ErrCancelled
		}

		if attempt > f.c.MaxRetries {
			f.metrics.Failure()

			fe := &FetchError{URL: url, Attempts: attempt, Err: err}
			var se *statusError
			if errors.As(err, &se) {
				fe.StatusCode = se.code
				fe.Body = se.body
			}
			return nil, fe
		}

		f.metrics.Retry()
		f.logger.WarnContext(ctx, "retrying fetch",
			"url", url,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		if waitErr := f.wait(ctx, delay); waitErr != nil {
			return nil, ErrCancelled
		}
		delay += f.c.DelayIncrement
	}
}

func (f *Fetcher) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode, body: body}
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		Header:      resp.Header,
		ContentType: resp.Header.Get(headerContentType),
		Body:        body,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewFetcher creates a Fetcher.
//
// If client is nil, http.DefaultClient is used. If opts is nil, DefaultRetryConfig is used.
// If the 'logger' is nil, a no-op logger writing to io.Discard will be used.
// If metrics is nil, NoopMetrics is used.
func NewFetcher(client *http.Client, opts *RetryConfig, logger *slog.Logger, metrics Metrics) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if metrics == nil {
		metrics = NoopMetrics{}
	}

	c := RetryConfig{}
	if opts == nil {
		c = DefaultRetryConfig()
	} else {
		c = *opts
	}

	return &Fetcher{client: client, logger: logger, metrics: metrics, c: c, wait: sleep}
}
