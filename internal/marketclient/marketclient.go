// Package marketclient implements the Marketplace Client (spec §4.1): a
// paged, rate-limited, retrying HTTP fetcher shared by the Buff163 and
// Youpin898 implementations in the buff and youpin subpackages.
package marketclient

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/skinmarket/internal/credentials"
	"github.com/sawpanic/skinmarket/internal/model"
	"github.com/sawpanic/skinmarket/internal/ratelimit"
)

// ErrorClass classifies a failed fetch per spec §4.1.
type ErrorClass string

const (
	ErrAuthFailed            ErrorClass = "AUTH_FAILED"
	ErrRateLimitedPersistent ErrorClass = "RATE_LIMITED_PERSISTENT"
	ErrTransport             ErrorClass = "TRANSPORT_ERROR"
	ErrMalformedResponse     ErrorClass = "MALFORMED_RESPONSE"
)

// Failure wraps a classified fetch error.
type Failure struct {
	Class ErrorClass
	Err   error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Class, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// RetryConfig bounds the exponential-backoff-with-jitter loop.
type RetryConfig struct {
	MaxRetries int
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches spec §4.1's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 5, MaxDelay: 10 * time.Second}
}

// UserAgents is the rotation pool the Python original drew request headers
// from (_examples/original_source/config.py USER_AGENTS).
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// RandomUserAgent picks one entry from UserAgents.
func RandomUserAgent() string {
	return UserAgents[rand.Intn(len(UserAgents))]
}

// PageFetcher fetches and decodes one page of a platform's catalog. The
// buff and youpin packages each provide a fetcher type implementing this
// against their own wire format.
type PageFetcher interface {
	// FetchPage issues one HTTP call and decodes it into items plus the
	// platform's notion of total pages (0 if the platform doesn't report
	// one — see Platform B's empty-page sentinel).
	FetchPage(ctx context.Context, req *http.Request) (items []model.Item, totalPages int, err error)
}

// Client drives the shared paging/retry/backoff state machine over a
// platform-specific PageFetcher.
type Client struct {
	Platform    model.Platform
	HTTPClient  *http.Client
	Gate        *ratelimit.Gate
	Breaker     Breaker
	Credentials *credentials.Store
	Retry       RetryConfig

	// BuildPageRequest constructs the *http.Request for one page; Buff and
	// Youpin encode page_index/page_size differently (query string vs.
	// JSON body).
	BuildPageRequest func(ctx context.Context, pageIndex, pageSize int) (*http.Request, error)
	// BuildSearchRequest constructs the *http.Request for a keyword search.
	BuildSearchRequest func(ctx context.Context, keyword string) (*http.Request, error)
	Fetcher            PageFetcher

	// EmptyPageEndsCatalog is true for platforms (B) that don't reliably
	// report total_pages; an empty page is the end-of-inventory sentinel.
	EmptyPageEndsCatalog bool

	// ShouldStop, when non-nil, is polled at page boundaries (Analysis
	// Gate cooperative cancellation, spec §5).
	ShouldStop func() bool

	// Metrics is optional: nil leaves request/retry counting off, which
	// keeps every test in this package and its buff/youpin subpackages
	// free of a metrics.Registry dependency.
	Metrics MetricsRecorder
}

// Breaker is satisfied by internal/breaker.Breaker; declared locally to
// keep this package independently testable with a stub breaker.
type Breaker interface {
	Execute(fn func() (any, error)) (any, error)
}

// MetricsRecorder is satisfied by internal/metrics.Registry; declared
// locally so this package does not depend on internal/metrics.
type MetricsRecorder interface {
	RecordMarketRequest(platform, outcome string)
	RecordMarketRetry(platform string)
}

// FetchPage performs exactly one paged request, including rate-limit wait,
// retry/backoff, and error classification. It does not loop.
func (c *Client) FetchPage(ctx context.Context, pageIndex, pageSize int) ([]model.Item, int, error) {
	for attempt := 0; ; attempt++ {
		if err := c.Gate.Wait(ctx, c.Platform); err != nil {
			return nil, 0, &Failure{Class: ErrTransport, Err: err}
		}

		req, err := c.BuildPageRequest(ctx, pageIndex, pageSize)
		if err != nil {
			return nil, 0, &Failure{Class: ErrTransport, Err: err}
		}
		c.decorate(req)

		result, execErr := c.Breaker.Execute(func() (any, error) {
			items, totalPages, err := c.Fetcher.FetchPage(ctx, req)
			if err != nil {
				return nil, err
			}
			return pageResult{items: items, totalPages: totalPages}, nil
		})

		if execErr == nil {
			c.recordRequest("ok")
			page := result.(pageResult)
			return page.items, page.totalPages, nil
		}

		class := classify(execErr)
		if class == ErrAuthFailed {
			c.recordRequest(string(ErrAuthFailed))
			return nil, 0, &Failure{Class: ErrAuthFailed, Err: execErr}
		}
		if attempt >= c.Retry.MaxRetries {
			if class == "" {
				class = ErrTransport
			}
			c.recordRequest(string(class))
			return nil, 0, &Failure{Class: class, Err: execErr}
		}

		c.recordRequest(string(class))
		c.recordRetry()
		delay := backoffWithJitter(attempt, c.Retry.MaxDelay)
		log.Warn().Str("platform", string(c.Platform)).Int("page", pageIndex).Int("attempt", attempt+1).
			Dur("delay", delay).Err(execErr).Msg("marketclient page fetch retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, 0, &Failure{Class: ErrTransport, Err: ctx.Err()}
		}

		if c.ShouldStop != nil && c.ShouldStop() {
			return nil, 0, &Failure{Class: ErrTransport, Err: context.Canceled}
		}
	}
}

// pageResult is the value Fetcher.FetchPage's result is boxed as when
// routed through the breaker's any-typed Execute.
type pageResult struct {
	items      []model.Item
	totalPages int
}

// FetchAllPages drives sequential paging for one platform up to max_pages,
// honoring Platform B's empty-page sentinel and polling ShouldStop between
// pages (spec §4.1 step 2, §5 suspension points).
func (c *Client) FetchAllPages(ctx context.Context, gen model.GeneratorConfig) (model.Snapshot, error) {
	var allItems []model.Item
	totalPages := gen.MaxPages

	for page := 1; page <= totalPages && page <= gen.MaxPages; page++ {
		if c.ShouldStop != nil && c.ShouldStop() {
			return model.Snapshot{}, &Failure{Class: ErrTransport, Err: context.Canceled}
		}

		items, reportedTotal, err := c.FetchPage(ctx, page, gen.PageSize)
		if err != nil {
			return model.Snapshot{}, err
		}

		if c.EmptyPageEndsCatalog && len(items) == 0 {
			break
		}
		allItems = append(allItems, items...)

		if reportedTotal > 0 {
			if reportedTotal < totalPages {
				totalPages = reportedTotal
			}
		} else if !c.EmptyPageEndsCatalog {
			// Platform doesn't report totals and doesn't use the
			// empty-page sentinel either: fall back to max_pages.
			totalPages = gen.MaxPages
		}
	}

	return model.NewSnapshot(c.Platform, gen, allItems, time.Now()), nil
}

// Search issues one keyword lookup (spec §4.1 `search`), used by the
// Incremental Pipeline (§4.9). It bypasses paging entirely.
func (c *Client) Search(ctx context.Context, keyword string) ([]model.Item, error) {
	if err := c.Gate.Wait(ctx, c.Platform); err != nil {
		return nil, &Failure{Class: ErrTransport, Err: err}
	}

	req, err := c.BuildSearchRequest(ctx, keyword)
	if err != nil {
		return nil, &Failure{Class: ErrTransport, Err: err}
	}
	c.decorate(req)

	result, execErr := c.Breaker.Execute(func() (any, error) {
		items, totalPages, err := c.Fetcher.FetchPage(ctx, req)
		if err != nil {
			return nil, err
		}
		return pageResult{items: items, totalPages: totalPages}, nil
	})
	if execErr != nil {
		class := classify(execErr)
		c.recordRequest(string(class))
		return nil, &Failure{Class: class, Err: execErr}
	}
	c.recordRequest("ok")
	return result.(pageResult).items, nil
}

func (c *Client) decorate(req *http.Request) {
	bag := c.Credentials.Bag(c.Platform)
	for k, v := range bag.Headers {
		req.Header.Set(k, v)
	}
	for name, value := range bag.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", RandomUserAgent())
	}
}

func (c *Client) recordRequest(outcome string) {
	if c.Metrics != nil {
		c.Metrics.RecordMarketRequest(string(c.Platform), outcome)
	}
}

func (c *Client) recordRetry() {
	if c.Metrics != nil {
		c.Metrics.RecordMarketRetry(string(c.Platform))
	}
}

func classify(err error) ErrorClass {
	if f, ok := err.(*Failure); ok {
		return f.Class
	}
	return ErrTransport
}

// backoffWithJitter computes exponential backoff (base 500ms) capped at
// maxDelay, with full jitter applied to avoid synchronized retry storms.
func backoffWithJitter(attempt int, maxDelay time.Duration) time.Duration {
	base := 500 * time.Millisecond
	exp := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if exp > maxDelay {
		exp = maxDelay
	}
	return time.Duration(rand.Int63n(int64(exp) + 1))
}
