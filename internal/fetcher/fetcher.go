// Package fetcher retrieves pages from the crawled sites with rate limiting,
// retries and charset decoding.
package fetcher

import (
	"context"
	"io"
	"net/url"
)

// Fetcher defines the interface for downloading remote pages.
type Fetcher interface {
	// Download issues a GET and returns the decoded response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// PostForm submits form as application/x-www-form-urlencoded and returns
	// the decoded response body.
	PostForm(ctx context.Context, url string, form url.Values) (io.ReadCloser, error)
}
