// Package transport performs single HTTP GETs and folds the outcome into a
// model.FetchResult. Both the SOCKS-proxied and the gateway fetch paths use it,
// so every transport reports results and failures the same way.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"

	"github.com/nao1215/onionwatch/internal/model"
)

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize int64 = 10 << 20

// Request describes a GET.
type Request struct {
	// URL is the absolute URL to fetch.
	URL string
	// Timeout bounds the whole request including the body. Zero means no extra bound.
	Timeout time.Duration
	// Headers are set on the request.
	Headers map[string]string
	// MaxBodySize caps the body. Zero uses DefaultMaxBodySize.
	MaxBodySize int64
}

// Get issues the request with client and never returns an error: transport
// failures become a failed result, and any HTTP response (whatever its
// status) becomes a successful one.
func Get(ctx context.Context, client *http.Client, r Request) model.FetchResult {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return model.FetchResult{Err: &model.FetchError{Kind: model.FailureInvalidURL, Message: err.Error()}}
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return model.NewFailedResult(err)
	}
	defer resp.Body.Close()

	limit := r.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return model.NewFailedResult(fmt.Errorf("read body: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	result := model.FetchResult{
		Success:     true,
		Content:     body,
		StatusCode:  resp.StatusCode,
		Headers:     model.FlattenHeaders(resp.Header),
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
	}
	if isTextual(contentType) {
		result.Text = DecodeText(body, contentType)
	}
	return result
}

// DecodeText converts body to UTF-8 using the charset from contentType, a
// BOM or an HTML meta tag, falling back to UTF-8.
func DecodeText(body []byte, contentType string) string {
	var enc encoding.Encoding
	enc, _, _ = charset.DetermineEncoding(body, contentType)
	if enc == nil || enc == encoding.Nop {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(bytes.ToValidUTF8(body, []byte("�")))
	}
	return string(decoded)
}

// isTextual reports whether a body of this media type should be decoded.
// An absent type is treated as text.
func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		strings.HasSuffix(mediaType, "json"),
		strings.HasSuffix(mediaType, "xml"),
		strings.HasSuffix(mediaType, "javascript"):
		return true
	}
	return false
}
