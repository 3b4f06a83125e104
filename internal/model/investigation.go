package model

import "time"

// Investigation holds what was extracted from one onion page.
type Investigation struct {
	// URL is the normalized URL that was investigated.
	URL string `json:"url"`

	// Success reports whether the page was fetched and analyzed.
	Success bool `json:"success"`

	// Title is the page's <title>, if any.
	Title string `json:"title,omitempty"`

	// Emails are the unique email addresses found in the page source.
	Emails []string `json:"emails"`

	// BTCAddresses are unique Bitcoin P2PKH and P2SH addresses.
	BTCAddresses []string `json:"btc_addresses"`

	// MoneroAddresses are unique Monero standard addresses.
	MoneroAddresses []string `json:"monero_addresses"`

	// EthereumAddresses are unique Ethereum addresses.
	EthereumAddresses []string `json:"ethereum_addresses"`

	// ExternalLinks are unique absolute http(s) links found in anchors.
	ExternalLinks []string `json:"external_links"`

	// OnionAddresses are checksum-valid v3 onion hosts mentioned in the page.
	OnionAddresses []string `json:"onion_addresses"`

	// HasServerStatus reports whether /server-status answered with HTTP 200.
	HasServerStatus bool `json:"has_server_status"`

	// ServerStatusContent is the beginning of the /server-status page.
	ServerStatusContent string `json:"server_status_content,omitempty"`

	// Error describes why the investigation failed.
	Error string `json:"error,omitempty"`

	// InvestigatedAt is when the investigation finished.
	InvestigatedAt time.Time `json:"investigated_at"`
}

// NewInvestigation returns an empty, unsuccessful Investigation for url with
// every list initialized so that it serializes as [] rather than null.
func NewInvestigation(url string) *Investigation {
	return &Investigation{
		URL:               url,
		Emails:            []string{},
		BTCAddresses:      []string{},
		MoneroAddresses:   []string{},
		EthereumAddresses: []string{},
		ExternalLinks:     []string{},
		OnionAddresses:    []string{},
	}
}

// TotalFindings counts emails and cryptocurrency addresses.
func (i *Investigation) TotalFindings() int {
	return len(i.Emails) + len(i.BTCAddresses) + len(i.MoneroAddresses) + len(i.EthereumAddresses)
}
