package fetch

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/gateway"
	"github.com/nao1215/onionwatch/internal/model"
)

// fakeManager records Start calls and returns a fixed outcome.
type fakeManager struct {
	starts atomic.Int32
	err    error
	addr   string
}

func (f *fakeManager) Start(context.Context) error {
	f.starts.Add(1)
	return f.err
}

func (f *fakeManager) SocksAddr() string {
	return f.addr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noEnv(string) string { return "" }

// newTestServer serves /ok (200), /missing (404), /slow (hangs) and /style.css
// (text/html body for a stylesheet, as misconfigured onion servers do).
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Agent", r.UserAgent())
		_, _ = io.WriteString(w, "<html>alive</html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "body{}")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// TestDetectMode tests cloud marker detection.
func TestDetectMode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		env     map[string]string
		markers []string
		want    model.TransportMode
	}{
		{name: "no markers set", env: nil, want: model.ModeLocalProxy},
		{name: "RENDER set", env: map[string]string{"RENDER": "true"}, want: model.ModeGateway},
		{name: "DYNO set", env: map[string]string{"DYNO": "web.1"}, want: model.ModeGateway},
		{name: "AWS set", env: map[string]string{"AWS_EXECUTION_ENV": "AWS_Lambda_go1.x"}, want: model.ModeGateway},
		{name: "empty value ignored", env: map[string]string{"VERCEL": ""}, want: model.ModeLocalProxy},
		{name: "unrelated variable", env: map[string]string{"HOME": "/root"}, want: model.ModeLocalProxy},
		{
			name:    "custom markers",
			env:     map[string]string{"MY_CLOUD": "1", "RENDER": "1"},
			markers: []string{"MY_CLOUD"},
			want:    model.ModeGateway,
		},
		{
			name:    "custom markers replace defaults",
			env:     map[string]string{"RENDER": "1"},
			markers: []string{"MY_CLOUD"},
			want:    model.ModeLocalProxy,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := DetectMode(func(k string) string { return tc.env[k] }, tc.markers)
			if got != tc.want {
				t.Errorf("DetectMode() = %v, expected %v", got, tc.want)
			}
		})
	}
}

// TestNewClientGatewayMode tests that gateway mode never starts Tor.
func TestNewClientGatewayMode(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	serverAddr := server.Listener.Addr().String()
	_, port, _ := net.SplitHostPort(serverAddr)

	// Every gateway host resolves to the test server.
	dialer := &net.Dialer{}
	gw := gateway.New(
		gateway.WithEndpoints("gw.test"),
		gateway.WithLogger(quietLogger()),
		gateway.WithHTTPClient(&http.Client{Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, serverAddr)
			},
		}}),
	)

	mgr := &fakeManager{}
	c := NewClient(context.Background(), config.NewConfig(),
		WithManager(mgr),
		WithGateway(gw),
		WithGetenv(func(k string) string {
			if k == "RENDER" {
				return "1"
			}
			return ""
		}),
		WithLogger(quietLogger()),
	)

	if c.Mode() != model.ModeGateway {
		t.Fatalf("Mode() = %v, expected gateway", c.Mode())
	}
	if mgr.starts.Load() != 0 {
		t.Errorf("expected no Start calls in gateway mode, got %d", mgr.starts.Load())
	}
	if c.GatewayEndpoint() != "gw.test" {
		t.Errorf("GatewayEndpoint() = %q", c.GatewayEndpoint())
	}

	onion := "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion:" + port
	if !c.ProbeExists(context.Background(), onion+"/ok", time.Second) {
		t.Error("expected /ok to exist through the gateway")
	}
	if c.ProbeExists(context.Background(), onion+"/missing", time.Second) {
		t.Error("expected /missing not to exist")
	}
}

// TestNewClientForceGateway tests the configuration override.
func TestNewClientForceGateway(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.ForceGateway = true
	mgr := &fakeManager{}
	c := NewClient(context.Background(), cfg, WithManager(mgr), WithGetenv(noEnv), WithLogger(quietLogger()))
	if c.Mode() != model.ModeGateway || mgr.starts.Load() != 0 {
		t.Errorf("expected forced gateway mode without Start, got %v and %d starts", c.Mode(), mgr.starts.Load())
	}
}

// TestNewClientDegraded tests the fallback to direct connections and the
// 200 / 404 / timeout classification.
func TestNewClientDegraded(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	mgr := &fakeManager{err: errors.New("no tor")}
	cfg := config.NewConfig()
	cfg.UserAgent = "onionwatch-test"

	c := NewClient(context.Background(), cfg, WithManager(mgr), WithGetenv(noEnv), WithLogger(quietLogger()))
	if c.Mode() != model.ModeLocalProxy || !c.Degraded() {
		t.Fatalf("expected degraded local mode, got mode %v degraded %v", c.Mode(), c.Degraded())
	}
	if mgr.starts.Load() != 1 {
		t.Errorf("expected one Start call, got %d", mgr.starts.Load())
	}
	if c.SocksAddr() != "" {
		t.Errorf("SocksAddr() = %q, expected empty", c.SocksAddr())
	}

	ok := c.FetchContent(context.Background(), server.URL+"/ok", time.Second)
	if !ok.IsOK() || ok.Text != "<html>alive</html>" {
		t.Errorf("expected 200 with body, got %+v", ok)
	}
	if ok.Headers["X-Agent"] != "onionwatch-test" {
		t.Errorf("User-Agent = %q", ok.Headers["X-Agent"])
	}

	missing := c.FetchContent(context.Background(), server.URL+"/missing", time.Second)
	if !missing.Success || missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 response, got %+v", missing)
	}

	slow := c.FetchContent(context.Background(), server.URL+"/slow", 100*time.Millisecond)
	if slow.Success || slow.Err == nil || slow.Err.Kind != model.FailureTimeout {
		t.Errorf("expected timeout failure, got %+v", slow)
	}
}

// TestNewClientLocalProxy tests fetching through a SOCKS5 proxy.
func TestNewClientLocalProxy(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	proxyAddr, connects := startSOCKS5(t)
	mgr := &fakeManager{addr: proxyAddr}

	c := NewClient(context.Background(), config.NewConfig(), WithManager(mgr), WithGetenv(noEnv), WithLogger(quietLogger()))
	if c.Degraded() || c.SocksAddr() != proxyAddr {
		t.Fatalf("expected proxied mode via %s, got degraded %v addr %q", proxyAddr, c.Degraded(), c.SocksAddr())
	}

	r := c.FetchContent(context.Background(), server.URL+"/ok", 2*time.Second)
	if !r.IsOK() {
		t.Fatalf("expected 200 through proxy, got %+v", r)
	}
	if connects.Load() == 0 {
		t.Error("expected the request to go through the SOCKS proxy")
	}
}

// TestFetchResource tests content type correction for assets.
func TestFetchResource(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	c := NewClient(context.Background(), config.NewConfig(),
		WithManager(&fakeManager{err: errors.New("no tor")}),
		WithGetenv(noEnv),
		WithLogger(quietLogger()),
	)

	r := c.FetchResource(context.Background(), server.URL+"/style.css", time.Second)
	if r.ContentType != "text/css" {
		t.Errorf("ContentType = %q, expected text/css", r.ContentType)
	}
	if string(r.Content) != "body{}" {
		t.Errorf("Content = %q", r.Content)
	}

	page := c.FetchResource(context.Background(), server.URL+"/ok", time.Second)
	if page.ContentType != "text/html; charset=utf-8" {
		t.Errorf("ContentType = %q, expected the server header", page.ContentType)
	}
}

// TestResolveContentType tests extension-based inference.
func TestResolveContentType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		url    string
		header string
		want   string
	}{
		{"http://x.onion/a.css", "", "text/css"},
		{"http://x.onion/a.js?v=3", "text/html", "application/javascript"},
		{"http://x.onion/logo.PNG", "text/html; charset=utf-8", "image/png"},
		{"http://x.onion/p.jpg", "", "image/jpeg"},
		{"http://x.onion/p.jpeg", "", "image/jpeg"},
		{"http://x.onion/i.svg", "", "image/svg+xml"},
		{"http://x.onion/favicon.ico", "", "image/x-icon"},
		{"http://x.onion/f.woff", "", "font/woff"},
		{"http://x.onion/f.woff2", "", "font/woff2"},
		{"http://x.onion/f.ttf", "", "font/ttf"},
		{"http://x.onion/f.otf", "", "font/otf"},
		{"http://x.onion/a.gif", "", "image/gif"},
		{"http://x.onion/a.webp", "", "image/webp"},
		{"http://x.onion/blob", "", "application/octet-stream"},
		{"http://x.onion/page", "text/html", "text/html"},
		{"http://x.onion/a.css", "text/css", "text/css"},
		{"http://x.onion/a.png", "image/webp", "image/webp"},
	}

	for _, tc := range testCases {
		t.Run(tc.url+"|"+tc.header, func(t *testing.T) {
			t.Parallel()
			if got := ResolveContentType(tc.url, tc.header); got != tc.want {
				t.Errorf("ResolveContentType(%q, %q) = %q, expected %q", tc.url, tc.header, got, tc.want)
			}
		})
	}
}

// startSOCKS5 runs a minimal no-auth SOCKS5 CONNECT proxy on loopback.
func startSOCKS5(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	var connects atomic.Int32
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveSOCKS5(conn, &connects)
		}
	}()
	return listener.Addr().String(), &connects
}

func serveSOCKS5(conn net.Conn, connects *atomic.Int32) {
	defer conn.Close()

	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil {
		return
	}
	if _, err := io.ReadFull(conn, make([]byte, head[1])); err != nil {
		return
	}
	_, _ = conn.Write([]byte{0x05, 0x00})

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}
	var host string
	switch req[3] {
	case 0x01:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	case 0x03:
		l := make([]byte, 1)
		if _, err := io.ReadFull(conn, l); err != nil {
			return
		}
		name := make([]byte, l[0])
		if _, err := io.ReadFull(conn, name); err != nil {
			return
		}
		host = string(name)
	case 0x04:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return
		}
		host = net.IP(ip).String()
	default:
		return
	}
	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(portBuf))))

	upstream, err := net.Dial("tcp", target) //nolint:noctx // test code
	if err != nil {
		_, _ = conn.Write([]byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
		return
	}
	defer upstream.Close()
	connects.Add(1)
	_, _ = conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})

	go func() {
		_, _ = io.Copy(upstream, conn)
		upstream.Close()
	}()
	_, _ = io.Copy(conn, upstream)
}
