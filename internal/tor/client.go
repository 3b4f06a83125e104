package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// defaultHandshakeTimeout bounds the SOCKS5 exchange in CheckConnection.
	defaultHandshakeTimeout = 2 * time.Second

	// maxRedirects is the redirect limit of clients returned by HTTPClient.
	maxRedirects = 10
)

// Client routes TCP connections and HTTP requests through a Tor SOCKS5 proxy.
type Client struct {
	proxyAddress     string
	dialer           proxy.ContextDialer
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	isolation        string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRequestTimeout sets http.Client.Timeout on clients from HTTPClient.
// Zero leaves requests bounded only by their context.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithHandshakeTimeout bounds CheckConnection.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithIsolation sends tag as SOCKS username and password. Tor's default
// IsolateSOCKSAuth puts streams with different credentials on different
// circuits, so one tag per run keeps runs apart.
func WithIsolation(tag string) ClientOption {
	return func(c *Client) {
		c.isolation = tag
	}
}

// NewClient creates a Client for the proxy at proxyAddress ("host:port").
// The proxy is not contacted; call CheckConnection to verify it.
func NewClient(proxyAddress string, opts ...ClientOption) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, proxyAddress)
	}

	c := &Client{
		proxyAddress:     proxyAddress,
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	var auth *proxy.Auth
	if c.isolation != "" {
		auth = &proxy.Auth{User: c.isolation, Password: c.isolation}
	}
	d, err := proxy.SOCKS5("tcp", proxyAddress, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	c.dialer = cd
	return c, nil
}

// isValidProxyAddress accepts "host:port" with a non-empty host and a
// decimal port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" || port[0] < '0' || port[0] > '9' {
		return false
	}
	n, err := strconv.ParseUint(port, 10, 16)
	return err == nil && n > 0
}

// ProxyAddress returns the proxy address.
func (c *Client) ProxyAddress() string {
	return c.proxyAddress
}

// Isolation returns the SOCKS isolation tag, or "" when none is set.
func (c *Client) Isolation() string {
	return c.isolation
}

// DialContext connects to address through the proxy.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, network, address)
}

// HTTPClient returns an HTTP client whose connections go through the proxy.
//
// TLS verification is disabled: onion services commonly use self-signed
// certificates and the onion address authenticates the service.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: c.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // onion services
		},
		// Each connection holds a Tor circuit.
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		// Compressed response sizes leak content (CRIME/BREACH).
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.requestTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// SOCKS5 wire values used by CheckConnection.
const (
	socksVersion    = 0x05
	socksNoAuth     = 0x00
	socksConnect    = 0x01
	socksDomainName = 0x03

	// probeOnion is a well-formed onion host that does not exist. Only the
	// shape of the proxy's reply matters.
	probeOnion = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.onion"
)

// CheckConnection tells a Tor SOCKS port apart from other listeners by
// sending an unauthenticated greeting and a CONNECT to a nonexistent onion
// host. Tor answers the CONNECT with a SOCKS5 reply of any code.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return ProxyStatusCannotConnect
		}
	}

	steps := []struct {
		request []byte
		reply   int
		accept  func([]byte) bool
	}{
		{
			request: []byte{socksVersion, 1, socksNoAuth},
			reply:   2,
			accept:  func(b []byte) bool { return b[0] == socksVersion && b[1] == socksNoAuth },
		},
		{
			request: connectRequest(probeOnion, 80),
			reply:   4,
			accept:  func(b []byte) bool { return b[0] == socksVersion },
		},
	}
	for _, step := range steps {
		if _, err := conn.Write(step.request); err != nil {
			return ProxyStatusCannotConnect
		}
		reply := make([]byte, step.reply)
		if _, err := io.ReadFull(conn, reply); err != nil {
			if isTimeout(err) {
				return ProxyStatusTimeout
			}
			return ProxyStatusWrongType
		}
		if !step.accept(reply) {
			return ProxyStatusWrongType
		}
	}
	return ProxyStatusOK
}

// connectRequest encodes a SOCKS5 CONNECT to host:port by domain name.
func connectRequest(host string, port uint16) []byte {
	req := make([]byte, 0, 7+len(host))
	req = append(req, socksVersion, socksConnect, 0x00, socksDomainName, byte(len(host)))
	req = append(req, host...)
	return append(req, byte(port>>8), byte(port))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
