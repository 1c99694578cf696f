// Package gateway is the single outbound-HTTP facade. Every third-party
// integration (indexers, metadata providers, download clients) dispatches
// through it under a provider key with its own rate limit, concurrency
// budget, and timeout.
package gateway

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limits configures one provider's outbound budget.
type Limits struct {
	Interval    time.Duration // minimum spacing window
	IntervalCap int           // requests permitted per interval
	Concurrency int           // maximum in-flight requests
	Timeout     time.Duration // per-request timeout
}

// DefaultLimits is used for provider keys with no explicit configuration.
var DefaultLimits = Limits{
	Interval:    time.Second,
	IntervalCap: 4,
	Concurrency: 8,
	Timeout:     30 * time.Second,
}

// Response is a fully-read upstream response. The gateway drains bodies
// before releasing the provider's concurrency slot.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// maxBodyBytes bounds response reads; Newznab feeds and client API replies
// are well under this.
const maxBodyBytes = 32 << 20

// Gateway dispatches outbound HTTP requests under per-provider limits.
type Gateway struct {
	client    *http.Client
	defaults  Limits
	overrides map[string]Limits
	logger    zerolog.Logger

	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	timeout time.Duration
}

// New creates a gateway with the given per-provider limit overrides.
func New(overrides map[string]Limits, defaults Limits, logger zerolog.Logger) *Gateway {
	if defaults.IntervalCap <= 0 {
		defaults = DefaultLimits
	}
	return &Gateway{
		client:    &http.Client{},
		defaults:  defaults,
		overrides: overrides,
		logger:    logger.With().Str("component", "gateway").Logger(),
		lanes:     make(map[string]*lane),
	}
}

// SetTransport replaces the underlying HTTP transport (tests).
func (g *Gateway) SetTransport(rt http.RoundTripper) {
	g.client.Transport = rt
}

func (g *Gateway) laneFor(provider string) *lane {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.lanes[provider]; ok {
		return l
	}

	limits := g.defaults
	if o, ok := g.overrides[provider]; ok {
		limits = o
	}
	if limits.Interval <= 0 {
		limits.Interval = DefaultLimits.Interval
	}
	if limits.IntervalCap <= 0 {
		limits.IntervalCap = DefaultLimits.IntervalCap
	}
	if limits.Concurrency <= 0 {
		limits.Concurrency = DefaultLimits.Concurrency
	}
	if limits.Timeout <= 0 {
		limits.Timeout = DefaultLimits.Timeout
	}

	l := &lane{
		limiter: rate.NewLimiter(rate.Every(limits.Interval/time.Duration(limits.IntervalCap)), 1),
		sem:     semaphore.NewWeighted(int64(limits.Concurrency)),
		timeout: limits.Timeout,
	}
	g.lanes[provider] = l
	return l
}

// Fetch dispatches a request under the provider's limits and returns the
// fully-read response. A request cancelled before dispatch leaves the queue
// without consuming budget. Only an explicit 429 is retried, once, after
// the server-provided delay.
func (g *Gateway) Fetch(ctx context.Context, provider string, req *http.Request) (*Response, error) {
	l := g.laneFor(provider)

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, &TransportError{Err: err}
	}
	defer l.sem.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	resp, err := g.dispatch(ctx, l, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		delay := retryAfter(resp.Header)
		g.logger.Warn().
			Str("provider", provider).
			Dur("retryAfter", delay).
			Msg("upstream rate limit hit, retrying once")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &TransportError{Err: ctx.Err()}
		}

		// The retry spends interval budget like any other request.
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Err: err}
		}

		resp, err = g.dispatch(ctx, l, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitedError{RetryAfter: retryAfter(resp.Header)}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, nil
}

func (g *Gateway) dispatch(ctx context.Context, l *lane, req *http.Request) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	httpResp, err := g.client.Do(req.Clone(reqCtx))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
