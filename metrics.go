package gomediacache

// Metrics receives counters from BlobCache and Fetcher.
// Implementations must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Expired()
	Retry()
	Failure()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Expired() {}
func (NoopMetrics) Retry()   {}
func (NoopMetrics) Failure() {}
