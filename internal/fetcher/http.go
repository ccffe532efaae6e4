package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/firmcrawl/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// MaxRetries is the total number of attempts per request.
	MaxRetries int
	// RatePerSec applies to hosts without an explicit limiter.
	RatePerSec float64
	// RateLimiters overrides the limiter for specific hosts.
	RateLimiters map[string]*rate.Limiter
	// Retry tunes backoff. MaxAttempts is taken from MaxRetries when unset.
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
	// DetectBlocks buffers successful bodies and rejects anti-bot
	// interstitials with a BlockedError.
	DetectBlocks bool
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("adaptive rate limit: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// DefaultAdaptiveLimiters returns adaptive rate limiters for the crawled hosts.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"apps.sfc.hk":   NewAdaptiveLimiter(5, 5),
		"webb-site.com": NewAdaptiveLimiter(2, 2),
	}
}

// HTTPFetcher implements Fetcher using net/http with retry, per-host rate
// limiting and per-host circuit breaking.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	breakers *resilience.HostBreakers

	mu               sync.Mutex
	limiters         map[string]*rate.Limiter
	adaptiveLimiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "firmcrawl/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
		opts.Retry.MaxAttempts = opts.MaxRetries
	}

	limiters := make(map[string]*rate.Limiter)
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	adaptive := DefaultAdaptiveLimiters()
	// An explicit limiter wins over the adaptive default for the same host.
	for host := range limiters {
		delete(adaptive, host)
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:             opts,
		breakers:         resilience.NewHostBreakers(opts.Breaker),
		limiters:         limiters,
		adaptiveLimiters: adaptive,
	}
}

// BreakerStates reports the circuit state of every host contacted so far.
func (f *HTTPFetcher) BreakerStates() map[string]resilience.BreakerState {
	return f.breakers.States()
}

// Download fetches the URL with a GET request.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	return f.do(ctx, http.MethodGet, rawURL, nil)
}

// PostForm submits form to the URL.
func (f *HTTPFetcher) PostForm(ctx context.Context, rawURL string, form url.Values) (io.ReadCloser, error) {
	if form == nil {
		form = url.Values{}
	}
	return f.do(ctx, http.MethodPost, rawURL, form)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string, form url.Values) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: parse url %s", rawURL)
	}
	host := u.Host

	breaker := f.breakers.Get(host)
	if err := breaker.Allow(); err != nil {
		return nil, eris.Wrapf(err, "fetch: %s %s", method, rawURL)
	}

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger(method, rawURL)

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*http.Response, error) {
		return f.attempt(ctx, method, rawURL, host, form)
	})
	breaker.Record(err)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: %s %s", method, rawURL)
	}
	return decodeBody(resp.Body, resp.Header.Get("Content-Type")), nil
}

func (f *HTTPFetcher) attempt(ctx context.Context, method, rawURL, host string, form url.Values) (*http.Response, error) {
	adaptive := f.adaptiveFor(host)
	if adaptive != nil {
		if err := adaptive.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
	} else if err := f.limiterFor(host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter wait")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "request cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrap(err, "http request"), 0)
	}

	if blocked, kind := DetectBlock(resp.StatusCode, resp.Header, nil); blocked {
		_ = resp.Body.Close()
		return nil, &BlockedError{URL: rawURL, Type: kind, Status: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusTooManyRequests && adaptive != nil {
		adaptive.OnRateLimit()
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(
			eris.Errorf("http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, eris.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	if f.opts.DetectBlocks {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "read body"), 0)
		}
		if blocked, kind := DetectBlock(resp.StatusCode, resp.Header, b); blocked {
			return nil, &BlockedError{URL: rawURL, Type: kind, Status: resp.StatusCode}
		}
		resp.Body = io.NopCloser(bytes.NewReader(b))
	}

	if adaptive != nil {
		adaptive.OnSuccess()
	}
	return resp, nil
}

func (f *HTTPFetcher) adaptiveFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adaptiveLimiters[host]
}

func (f *HTTPFetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok := f.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(f.opts.RatePerSec), max(1, int(f.opts.RatePerSec)))
	f.limiters[host] = lim
	return lim
}
