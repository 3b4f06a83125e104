// Package investigate fetches an onion page and extracts identifying
// material from it: email addresses, cryptocurrency addresses, outbound
// links, other onion services, and an exposed Apache /server-status page.
package investigate

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/onionwatch/internal/tor"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultDelay is the pause between investigations in BulkInvestigate.
	DefaultDelay = 2 * time.Second

	// MaxExternalLinks caps the external links kept per page.
	MaxExternalLinks = 50

	// MaxServerStatusLength caps the stored /server-status content, in characters.
	MaxServerStatusLength = 5000

	serverStatusPath = "/server-status"
)

// Investigator runs investigations through a fetch.Fetcher.
type Investigator struct {
	fetcher fetch.Fetcher
	timeout time.Duration
	delay   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Investigator.
type Option func(*Investigator)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Investigator) {
		if d > 0 {
			i.timeout = d
		}
	}
}

// WithDelay sets the pause between investigations. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(i *Investigator) {
		if d >= 0 {
			i.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Investigator) {
		i.logger = logger
	}
}

// New returns an Investigator.
func New(f fetch.Fetcher, opts ...Option) *Investigator {
	i := &Investigator{
		fetcher: f,
		timeout: DefaultTimeout,
		delay:   DefaultDelay,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i
}

// NormalizeURL trims rawURL and prefixes http:// when it has no http or
// https scheme.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return rawURL
	}
	return "http://" + rawURL
}

// Investigate fetches rawURL and extracts findings from its source.
// Failures are reported through the result's Error field, never as a
// Go error.
func (i *Investigator) Investigate(ctx context.Context, rawURL string) *model.Investigation {
	target := NormalizeURL(rawURL)
	inv := model.NewInvestigation(target)
	defer func() { inv.InvestigatedAt = i.now() }()

	result := i.fetcher.FetchContent(ctx, target, i.timeout)
	switch {
	case !result.Success:
		inv.Error = failureMessage(result.Err)
		i.logger.Warn("investigation failed", "url", target, "error", inv.Error)
		return inv
	case result.StatusCode >= 400:
		inv.Error = "HTTP " + strconv.Itoa(result.StatusCode)
		i.logger.Warn("investigation failed", "url", target, "error", inv.Error)
		return inv
	}

	source := result.Text
	inv.Emails = uniqueMatches(emailRegex, source, strings.ToLower)
	inv.BTCAddresses = uniqueMatches(btcRegex, source, nil)
	inv.MoneroAddresses = uniqueMatches(moneroRegex, source, nil)
	inv.EthereumAddresses = uniqueMatches(ethereumRegex, source, nil)
	parsed := parsePage(source, MaxExternalLinks)
	inv.Title = parsed.title
	if parsed.links != nil {
		inv.ExternalLinks = parsed.links
	}
	if onions := tor.ExtractV3Addresses(source); len(onions) > 0 {
		inv.OnionAddresses = onions
	}

	inv.HasServerStatus, inv.ServerStatusContent = i.checkServerStatus(ctx, target)
	inv.Success = true

	i.logger.Info("investigation complete",
		"url", target,
		"findings", inv.TotalFindings(),
		"external_links", len(inv.ExternalLinks),
		"server_status", inv.HasServerStatus,
	)
	return inv
}

// checkServerStatus probes <url>/server-status. Only HTTP 200 counts.
func (i *Investigator) checkServerStatus(ctx context.Context, target string) (bool, string) {
	statusURL := strings.TrimRight(target, "/") + serverStatusPath
	result := i.fetcher.FetchContent(ctx, statusURL, i.timeout)
	if !result.IsOK() {
		i.logger.Debug("no server-status", "url", statusURL, "reason", result.Reason())
		return false, ""
	}
	i.logger.Info("server-status exposed", "url", statusURL)
	return true, truncateRunes(result.Text, MaxServerStatusLength)
}

// BulkInvestigate investigates urls one at a time, pausing between them.
// onResult, when non-nil, is called after each investigation. When ctx is
// canceled the remaining URLs are returned as failed with error "canceled".
func (i *Investigator) BulkInvestigate(
	ctx context.Context,
	urls []string,
	onResult func(*model.Investigation),
) []*model.Investigation {
	results := make([]*model.Investigation, 0, len(urls))
	for n, u := range urls {
		var inv *model.Investigation
		if ctx.Err() != nil {
			inv = model.NewInvestigation(NormalizeURL(u))
			inv.Error = string(model.FailureCanceled)
			inv.InvestigatedAt = i.now()
		} else {
			i.logger.Info("investigating", "url", u, "index", n+1, "total", len(urls))
			inv = i.Investigate(ctx, u)
		}
		results = append(results, inv)
		if onResult != nil {
			onResult(inv)
		}

		if n < len(urls)-1 {
			i.pause(ctx)
		}
	}
	return results
}

func (i *Investigator) pause(ctx context.Context) {
	if i.delay <= 0 || ctx.Err() != nil {
		return
	}
	timer := time.NewTimer(i.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func failureMessage(err *model.FetchError) string {
	if err == nil {
		return "fetch failed"
	}
	switch err.Kind {
	case model.FailureTimeout:
		return "request timed out"
	case model.FailureConnection, model.FailureDNS:
		return "connection failed"
	default:
		return err.Error()
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
