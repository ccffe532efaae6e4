package fetcher

import (
	"io"
	"mime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (d *decodedBody) Close() error {
	return d.closer.Close()
}

// decodeBody converts body to UTF-8 using the charset named in contentType.
// Bodies without a charset, or already UTF-8, pass through untouched.
func decodeBody(body io.ReadCloser, contentType string) io.ReadCloser {
	if contentType == "" {
		return body
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Warn("fetcher: unknown charset, reading body as-is",
			zap.String("charset", charset),
		)
		return body
	}
	return &decodedBody{Reader: enc.NewDecoder().Reader(body), closer: body}
}
