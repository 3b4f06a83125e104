package transport

import (
	"net"
	"net/http"
	"time"
)

// maxRedirects matches the limit of the SOCKS client in internal/tor.
const maxRedirects = 10

// NewDirectClient returns an HTTP client that connects without a proxy and
// verifies TLS certificates. It backs the gateway transport and the degraded
// local mode used when no Tor proxy is available.
func NewDirectClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
