package model

// TransportMode identifies which transport backs a fetch client.
// It is decided once when the client is constructed and never changes.
type TransportMode int

const (
	// ModeLocalProxy routes requests through a local Tor SOCKS proxy,
	// or directly when no proxy could be found (degraded mode).
	ModeLocalProxy TransportMode = iota

	// ModeGateway rewrites onion URLs onto a public Tor2Web gateway and
	// fetches them over the clearnet.
	ModeGateway
)

// String returns a human-readable name for the mode.
func (m TransportMode) String() string {
	switch m {
	case ModeLocalProxy:
		return "local-proxy"
	case ModeGateway:
		return "gateway"
	default:
		return "unknown"
	}
}
