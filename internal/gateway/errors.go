package gateway

import (
	"fmt"
	"time"
)

// TransportError wraps network, DNS, and timeout failures. Callers may retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx response from the remote service. The body is
// preserved for diagnostics.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// RateLimitedError is surfaced when the remote returned 429 and the single
// delayed retry was also rejected.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by upstream (retry after %s)", e.RetryAfter)
}
