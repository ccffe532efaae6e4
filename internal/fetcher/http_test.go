package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/time/rate"

	"github.com/sells-group/firmcrawl/internal/resilience"
)

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent/1.0",
		Timeout:    5 * time.Second,
		RatePerSec: 1000,
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestDownload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-agent/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "hello")
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, body))
}

func TestDownload_RetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", readAll(t, body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownload_NotFoundIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDownload_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "never")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher()
	_, err := f.Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestDownload_InvalidURL(t *testing.T) {
	f := newTestFetcher()
	_, err := f.Download(context.Background(), "://bad")
	require.Error(t, err)
}

func TestPostForm_SendsEncodedForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "active", r.PostForm.Get("licstatus"))
		assert.Equal(t, "B", r.PostForm.Get("nameStartLetter"))
		fmt.Fprint(w, `{"totalCount":0,"items":[]}`)
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.PostForm(context.Background(), srv.URL, map[string][]string{
		"licstatus":       {"active"},
		"nameStartLetter": {"B"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalCount":0,"items":[]}`, readAll(t, body))
}

func TestPostForm_RetryResendsBody(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Q", r.PostForm.Get("nameStartLetter"))
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.PostForm(context.Background(), srv.URL, map[string][]string{"nameStartLetter": {"Q"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", readAll(t, body))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDownload_DecodesCharset(t *testing.T) {
	encoded, err := traditionalchinese.Big5.NewEncoder().String("證券及期貨事務監察委員會")
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=big5")
		fmt.Fprint(w, encoded)
	}))
	defer srv.Close()

	f := newTestFetcher()
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "證券及期貨事務監察委員會", readAll(t, body))
}

func TestDecodeBody_UnknownCharsetPassesThrough(t *testing.T) {
	rc := io.NopCloser(stringsReader("plain"))
	out := decodeBody(rc, "text/html; charset=x-made-up")
	assert.Equal(t, "plain", readAll(t, out))
}

func TestDownload_BreakerOpensAfterFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{
		RatePerSec: 1000,
		Retry:      resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
		Breaker:    resilience.BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour},
	})

	for range 2 {
		_, err := f.Download(context.Background(), srv.URL)
		require.Error(t, err)
	}
	_, err := f.Download(context.Background(), srv.URL)
	require.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, int32(2), attempts.Load())

	states := f.BreakerStates()
	assert.Equal(t, resilience.BreakerOpen, states[srv.Listener.Addr().String()])
}

func TestDownload_RespectsHostLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	f := NewHTTPFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{host: rate.NewLimiter(2, 1)},
	})

	start := time.Now()
	for range 3 {
		body, err := f.Download(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = body.Close()
	}
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	a.OnRateLimit()
	assert.InDelta(t, 5.0, float64(a.Limit()), 0.001)
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.001)

	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(a.Limit()), 0.001)
}

func TestDefaultAdaptiveLimiters_CoverCrawledHosts(t *testing.T) {
	lims := DefaultAdaptiveLimiters()
	assert.Contains(t, lims, "apps.sfc.hk")
	assert.Contains(t, lims, "webb-site.com")
}
