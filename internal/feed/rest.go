package feed

// rest.go - rate-limited REST auxiliary calls (spec.md §4.2): last-close,
// fallback quote, and option-chain snapshot fetches all funnel through a
// single MultiLimiter (Quote API <=1 rps, Data API <=5 rps). Authorization
// failures block the offending channel for 900s; vendor rate-limit
// responses block it for 120s.

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"dhancore/pkg/ratelimit"
	"dhancore/pkg/retry"
)

const (
	CategoryQuote = "quote"
	CategoryData  = "data"

	authBlockDuration  = 900 * time.Second
	rateBlockDuration  = 120 * time.Second
)

// RESTClient wraps an *http.Client with the ingestor's rate limiting and
// channel-block discipline.
type RESTClient struct {
	http   *http.Client
	rates  *ratelimit.MultiLimiter
	retry  retry.Config
	blocks sync.Map // category -> time.Time (blocked until)
}

// NewRESTClient builds a RESTClient. The caller supplies rate categories
// already registered on rates (quote, data). retryCfg governs transport-level
// retries (connection refused, timeout) before a response is ever read; it
// never retries a request that got a response, since 401/403/429 handling
// below already encodes the right backoff for those.
func NewRESTClient(httpClient *http.Client, rates *ratelimit.MultiLimiter, retryCfg retry.Config) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTClient{http: httpClient, rates: rates, retry: retryCfg}
}

// Do executes req after waiting for a rate-limit token in category,
// refusing outright if the category is currently blocked. A 401/403
// response blocks the category for 900s; a 429 blocks it for 120s.
// Transport-level failures (no response at all) are retried per c.retry.
func (c *RESTClient) Do(ctx context.Context, category string, req *http.Request) (*http.Response, error) {
	if until, blocked := c.blockedUntil(category); blocked {
		return nil, fmt.Errorf("channel %s blocked until %s", category, until.Format(time.RFC3339))
	}

	if c.rates != nil {
		if err := c.rates.Wait(ctx, category); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	resp, err := retry.DoWithResult(ctx, func() (*http.Response, error) {
		return c.http.Do(req.WithContext(ctx))
	}, c.retry)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.block(category, authBlockDuration)
	case http.StatusTooManyRequests:
		c.block(category, rateBlockDuration)
	}

	return resp, nil
}

func (c *RESTClient) block(category string, d time.Duration) {
	c.blocks.Store(category, time.Now().Add(d))
}

func (c *RESTClient) blockedUntil(category string) (time.Time, bool) {
	v, ok := c.blocks.Load(category)
	if !ok {
		return time.Time{}, false
	}
	until := v.(time.Time)
	if time.Now().After(until) {
		c.blocks.Delete(category)
		return time.Time{}, false
	}
	return until, true
}
