// Package tor locates, launches and supervises a local Tor SOCKS proxy.
//
// Manager owns the proxy lifecycle. Start reuses a proxy that is already
// listening on 9050 or 9150 (the system daemon or the Tor Browser), and
// otherwise launches the first tor executable found by Locator with a torrc
// written into the data directory. Stop only terminates processes the
// Manager launched itself.
//
// Client wraps the SOCKS5 proxy for HTTP and raw TCP use, and
// CheckConnection verifies that a listening port is really Tor.
//
// The onion helpers validate v3 addresses (checksum included) so obviously
// broken targets are reported before any network traffic is sent.
package tor
