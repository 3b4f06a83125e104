// Package gateway fetches onion URLs over the clearnet through a public
// Tor2Web gateway. It is used where a local Tor proxy cannot run, such as
// cloud sandboxes.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/onionwatch/internal/tor"
	"github.com/nao1215/onionwatch/internal/transport"
)

// DefaultUserAgent is sent by gateway requests. Gateways commonly reject
// non-browser user agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DefaultTimeout is used when Fetch is called without a timeout.
const DefaultTimeout = 30 * time.Second

// DefaultEndpoints returns the built-in gateway hostnames in preference order.
func DefaultEndpoints() []string {
	return []string{"tor2web.org", "onion.to", "onion.ws", "onion.sh", "onion.ly"}
}

// Gateway rewrites and fetches onion URLs through a Tor2Web gateway.
// Only the first endpoint is used; the rest are informational.
type Gateway struct {
	endpoints   []string
	client      *http.Client
	userAgent   string
	maxBodySize int64
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEndpoints sets the gateway hostnames. Empty input keeps the defaults.
func WithEndpoints(endpoints ...string) Option {
	return func(g *Gateway) {
		cleaned := make([]string, 0, len(endpoints))
		for _, e := range endpoints {
			e = strings.Trim(strings.TrimSpace(strings.ToLower(e)), ".")
			if e != "" {
				cleaned = append(cleaned, e)
			}
		}
		if len(cleaned) > 0 {
			g.endpoints = cleaned
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *Gateway) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// WithMaxBodySize caps response bodies.
func WithMaxBodySize(n int64) Option {
	return func(g *Gateway) {
		g.maxBodySize = n
	}
}

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a Gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		endpoints:   DefaultEndpoints(),
		userAgent:   DefaultUserAgent,
		maxBodySize: transport.DefaultMaxBodySize,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = transport.NewDirectClient(0)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Endpoint returns the gateway hostname in use.
func (g *Gateway) Endpoint() string {
	return g.endpoints[0]
}

// Endpoints returns a copy of all configured gateway hostnames.
func (g *Gateway) Endpoints() []string {
	return append([]string(nil), g.endpoints...)
}

// Rewrite maps an onion URL onto the gateway: the ".onion" suffix of the
// host is replaced by ".<gateway>" and scheme, port, path, query and fragment
// are preserved. URLs whose host is not an onion host, and strings that do
// not parse, are returned unchanged.
func (g *Gateway) Rewrite(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	host := u.Hostname()
	if !tor.IsOnionHost(host) {
		return rawURL
	}

	rewritten := host[:len(host)-len(tor.OnionSuffix)] + "." + g.Endpoint()
	if port := u.Port(); port != "" {
		rewritten += ":" + port
	}
	u.Host = rewritten
	return u.String()
}

// Fetch rewrites rawURL and GETs it with TLS verification and redirects
// enabled. It never returns an error; failures are reported in the result.
func (g *Gateway) Fetch(ctx context.Context, rawURL string, timeout time.Duration) model.FetchResult {
	if timeout <= 0 {
		timeout = g.timeout
	}
	target := g.Rewrite(rawURL)
	g.logger.Debug("gateway fetch", "url", rawURL, "gateway_url", target)

	return transport.Get(ctx, g.client, transport.Request{
		URL:         target,
		Timeout:     timeout,
		Headers:     map[string]string{"User-Agent": g.userAgent},
		MaxBodySize: g.maxBodySize,
	})
}
