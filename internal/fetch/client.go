// Package fetch retrieves onion pages and resources through whichever
// transport the environment allows: a local Tor SOCKS proxy, a public
// Tor2Web gateway in cloud sandboxes, or, when Tor cannot be reached at
// all, direct connections.
package fetch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/gateway"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/onionwatch/internal/tor"
	"github.com/nao1215/onionwatch/internal/transport"
)

// Fetcher is the fetch surface consumed by the liveness checker and the
// investigator. *Client implements it.
type Fetcher interface {
	FetchContent(ctx context.Context, url string, timeout time.Duration) model.FetchResult
}

// Client fetches URLs through the transport chosen at construction.
// The mode never changes for the lifetime of a Client, and a Client is safe
// for concurrent use.
type Client struct {
	mode        model.TransportMode
	degraded    bool
	socksAddr   string
	httpClient  *http.Client
	gateway     *gateway.Gateway
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger

	// ownedManager is set when NewClient built the manager itself.
	ownedManager *tor.Manager
}

// ProxyStarter provides a local SOCKS proxy. *tor.Manager implements it.
type ProxyStarter interface {
	Start(ctx context.Context) error
	SocksAddr() string
}

type options struct {
	manager   ProxyStarter
	gateway   *gateway.Gateway
	getenv    func(string) string
	logger    *slog.Logger
	isolation string
}

// Option configures NewClient.
type Option func(*options)

// WithManager sets the proxy provider used in local mode.
func WithManager(m ProxyStarter) Option {
	return func(o *options) {
		o.manager = m
	}
}

// WithGateway sets the gateway used in gateway mode.
func WithGateway(g *gateway.Gateway) Option {
	return func(o *options) {
		o.gateway = g
	}
}

// WithGetenv replaces the environment lookup used for mode detection.
func WithGetenv(getenv func(string) string) Option {
	return func(o *options) {
		o.getenv = getenv
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithIsolation gives the client's Tor streams their own circuits, keyed
// by tag. It has no effect outside local proxied mode.
func WithIsolation(tag string) Option {
	return func(o *options) {
		o.isolation = tag
	}
}

// NewClient decides the transport once and returns a ready Client.
//
// In gateway mode the Tor manager is never touched. In local mode the
// manager's Start is called; if it fails, the client falls back to direct
// unproxied connections and logs a warning. NewClient itself never fails.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	c := &Client{
		userAgent:   cfg.UserAgent,
		timeout:     cfg.Timeout,
		maxBodySize: cfg.MaxBodySize,
		logger:      o.logger,
	}

	c.mode = DetectMode(o.getenv, cfg.CloudMarkers)
	if cfg.ForceGateway {
		c.mode = model.ModeGateway
	}

	if c.mode == model.ModeGateway {
		c.gateway = o.gateway
		if c.gateway == nil {
			c.gateway = gateway.New(
				gateway.WithEndpoints(cfg.Gateways...),
				gateway.WithUserAgent(cfg.UserAgent),
				gateway.WithMaxBodySize(cfg.MaxBodySize),
				gateway.WithTimeout(cfg.Timeout),
				gateway.WithLogger(o.logger),
			)
		}
		c.logger.Info("using Tor2Web gateway", "gateway", c.gateway.Endpoint())
		return c
	}

	var manager ProxyStarter = o.manager
	if manager == nil {
		c.ownedManager = NewManager(cfg, o.logger)
		manager = c.ownedManager
	}

	if err := manager.Start(ctx); err != nil {
		c.logger.Warn("Tor is unavailable, using direct connections; onion hosts will not resolve",
			"error", err)
		c.degraded = true
		c.httpClient = transport.NewDirectClient(0)
		return c
	}

	c.socksAddr = manager.SocksAddr()
	torClient, err := tor.NewClient(c.socksAddr, tor.WithIsolation(o.isolation))
	if err != nil {
		c.logger.Warn("invalid SOCKS address, using direct connections", "socks_addr", c.socksAddr, "error", err)
		c.degraded = true
		c.httpClient = transport.NewDirectClient(0)
		return c
	}
	c.httpClient = torClient.HTTPClient()
	c.logger.Info("using local Tor proxy", "socks_addr", c.socksAddr, "isolated", o.isolation != "")
	return c
}

// Close stops a Tor process launched by a manager that NewClient created
// itself. Managers passed with WithManager are left to the caller.
func (c *Client) Close() {
	if c.ownedManager != nil {
		c.ownedManager.Stop()
	}
}

// NewManager builds a tor.Manager from cfg.
func NewManager(cfg *config.Config, logger *slog.Logger) *tor.Manager {
	return tor.NewManager(
		tor.WithDataDir(cfg.TorDataDir),
		tor.WithLocator(tor.NewLocator(tor.WithOverride(cfg.TorExecutable))),
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithLogger(logger),
	)
}

// Mode returns the transport mode.
func (c *Client) Mode() model.TransportMode {
	return c.mode
}

// Degraded reports whether local mode fell back to direct connections.
func (c *Client) Degraded() bool {
	return c.degraded
}

// SocksAddr returns the SOCKS proxy in use, or "" outside proxied local mode.
func (c *Client) SocksAddr() string {
	return c.socksAddr
}

// GatewayEndpoint returns the gateway hostname in gateway mode, or "".
func (c *Client) GatewayEndpoint() string {
	if c.gateway == nil {
		return ""
	}
	return c.gateway.Endpoint()
}

// FetchContent GETs url and returns the page. A timeout of zero or less uses
// the client default. Any HTTP response, whatever its status, is a
// successful result; transport failures are failed results.
func (c *Client) FetchContent(ctx context.Context, url string, timeout time.Duration) model.FetchResult {
	if timeout <= 0 {
		timeout = c.timeout
	}
	if c.mode == model.ModeGateway {
		return c.gateway.Fetch(ctx, url, timeout)
	}
	return transport.Get(ctx, c.httpClient, transport.Request{
		URL:         url,
		Timeout:     timeout,
		Headers:     map[string]string{"User-Agent": c.userAgent},
		MaxBodySize: c.maxBodySize,
	})
}

// FetchResource GETs a page asset. The result's ContentType is corrected
// from the URL extension when the server sent none or sent text/html for
// something that is clearly not HTML.
func (c *Client) FetchResource(ctx context.Context, url string, timeout time.Duration) model.FetchResult {
	result := c.FetchContent(ctx, url, timeout)
	if result.Success {
		result.ContentType = ResolveContentType(url, result.ContentType)
	}
	return result
}

// ProbeExists reports whether url answers with HTTP 200.
// Every other status and every failure yields false.
func (c *Client) ProbeExists(ctx context.Context, url string, timeout time.Duration) bool {
	return c.FetchContent(ctx, url, timeout).IsOK()
}
