package tor

import (
	"context"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultProbeTimeout bounds a single port probe.
	DefaultProbeTimeout = 500 * time.Millisecond

	// FallbackPortLow is the first port scanned when a preferred port is taken.
	FallbackPortLow = 10000

	// FallbackPortHigh is the exclusive upper bound of the fallback scan.
	FallbackPortHigh = 11000
)

// IsPortOpen reports whether a TCP connection to host:port can be established
// within timeout. Refusals, timeouts and resolution failures all report false.
// The connection is closed immediately.
func IsPortOpen(ctx context.Context, host string, port int, timeout time.Duration) bool {
	if port <= 0 || port > 65535 {
		return false
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = conn.Close() //nolint:errcheck // probe connection carries no data
	return true
}

// FindFreePort returns preferred if nothing listens on it locally, otherwise
// the first port in [lo, hi) that is not open. When every candidate is open,
// preferred is returned and the subsequent launch fails on its own.
//
// The result is only free at the moment of the probe; another process may
// bind it before tor does.
func FindFreePort(preferred, lo, hi int) int {
	return findFreePort(context.Background(), preferred, lo, hi, DefaultProbeTimeout)
}

func findFreePort(ctx context.Context, preferred, lo, hi int, timeout time.Duration) int {
	if !IsPortOpen(ctx, "127.0.0.1", preferred, timeout) {
		return preferred
	}
	for port := lo; port < hi; port++ {
		if port == preferred {
			continue
		}
		if !IsPortOpen(ctx, "127.0.0.1", port, timeout) {
			return port
		}
	}
	return preferred
}
