package tor

import (
	"encoding/base32"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionSuffix is the top-level domain of onion services.
	OnionSuffix = ".onion"

	// onionV3Version is the version byte embedded in v3 addresses.
	onionV3Version = 0x03
)

// Onion address errors returned by CheckTargetURL.
var (
	// ErrInvalidOnionAddress is returned for an onion host that is not a valid v3 address.
	ErrInvalidOnionAddress = errors.New("invalid onion address")

	// ErrV2AddressDeprecated is returned for a 16-character v2 host.
	// V2 onion services stopped working in October 2021.
	ErrV2AddressDeprecated = errors.New("v2 onion addresses are deprecated and no longer functional")

	// ErrInvalidTargetURL is returned when a target is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("target must be an absolute http or https URL")
)

var (
	onionV3Pattern        = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern        = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)
	onionV3ContentPattern = regexp.MustCompile(`[a-z2-7]{56}\.onion`)
	checksumPrefix        = []byte(".onion checksum")
)

// IsOnionHost reports whether host (optionally with a port) is in the .onion domain.
func IsOnionHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.HasSuffix(strings.ToLower(host), OnionSuffix)
}

// IsValidV3Address reports whether address is a v3 onion address with a
// correct checksum and version byte. A subdomain is not accepted.
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, OnionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	// pubkey (32) || checksum (2) || version (1)
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}
	expected := computeV3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// computeV3Checksum returns SHA3-256(".onion checksum" || pubkey || version)[:2].
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	hash := sha3.Sum256(data)
	return hash[:2]
}

// IsV2Address reports whether address has the deprecated v2 format.
func IsV2Address(address string) bool {
	return onionV2Pattern.MatchString(strings.ToLower(address))
}

// ExtractV3Addresses returns the unique, checksum-valid v3 addresses found in
// content, in order of first appearance.
func ExtractV3Addresses(content string) []string {
	matches := onionV3ContentPattern.FindAllString(strings.ToLower(content), -1)

	seen := make(map[string]bool)
	var result []string
	for _, match := range matches {
		if seen[match] || !IsValidV3Address(match) {
			continue
		}
		seen[match] = true
		result = append(result, match)
	}
	return result
}

// CheckTargetURL validates a liveness target. The URL must be absolute http
// or https. When the host is an onion address, its last two labels must form
// a valid v3 address (subdomains such as www.<addr>.onion are allowed).
// Clearnet hosts are accepted unchanged.
func CheckTargetURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ErrInvalidTargetURL
	}

	host := strings.ToLower(u.Hostname())
	if !IsOnionHost(host) {
		return nil
	}

	labels := strings.Split(strings.TrimSuffix(host, OnionSuffix), ".")
	address := labels[len(labels)-1] + OnionSuffix
	switch {
	case IsValidV3Address(address):
		return nil
	case IsV2Address(address):
		return ErrV2AddressDeprecated
	default:
		return ErrInvalidOnionAddress
	}
}
