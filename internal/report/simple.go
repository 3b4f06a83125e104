package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/onionwatch/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// aliveOnly lists only alive targets in check reports.
	aliveOnly bool

	// verbose adds failure kinds and server-status content.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithAliveOnly lists only alive targets.
func WithAliveOnly(aliveOnly bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.aliveOnly = aliveOnly
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteCheck outputs the liveness report.
func (w *SimpleWriter) WriteCheck(report *CheckReport) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ONIONWATCH LIVENESS REPORT")

	transport := report.Transport
	switch {
	case report.Gateway != "":
		transport += " (" + report.Gateway + ")"
	case report.Degraded:
		transport += " (degraded: direct connections)"
	case report.SocksAddr != "":
		transport += " (" + report.SocksAddr + ")"
	}
	fmt.Fprintf(&sb, "Transport:  %s\n", transport)
	fmt.Fprintf(&sb, "Started:    %s\n", displayTime(report.StartedAt))
	fmt.Fprintf(&sb, "Elapsed:    %s\n\n", report.Elapsed().Round(10*time.Millisecond))

	writeSection(&sb, "SUMMARY")
	fmt.Fprintf(&sb, "  ALIVE:    %d\n", report.Summary.Alive)
	fmt.Fprintf(&sb, "  DEAD:     %d\n", report.Summary.Dead)
	fmt.Fprintf(&sb, "  TOTAL:    %d targets\n\n", report.Summary.Total())

	writeSection(&sb, "TARGETS")
	listed := 0
	for _, r := range report.Summary.Records {
		if w.aliveOnly && !r.IsAlive() {
			continue
		}
		listed++
		if r.IsAlive() {
			fmt.Fprintf(&sb, "  [+] %s  %d  %.2fs\n", r.URL, r.StatusCode, r.ResponseTimeSeconds())
			continue
		}
		fmt.Fprintf(&sb, "  [-] %s  %s\n", r.URL, r.Reason)
		if w.verbose && r.FailureKind != "" {
			fmt.Fprintf(&sb, "      Kind: %s\n", r.FailureKind)
		}
	}
	if listed == 0 {
		sb.WriteString("  No targets to show\n")
	}
	sb.WriteString("\n")

	writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

// WriteInvestigations outputs the investigation results.
func (w *SimpleWriter) WriteInvestigations(results []*model.Investigation) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "ONIONWATCH INVESTIGATION REPORT")

	if len(results) == 0 {
		sb.WriteString("No investigations\n\n")
	}
	for _, inv := range results {
		writeSection(&sb, inv.URL)
		if !inv.Success {
			fmt.Fprintf(&sb, "  Status: FAILED - %s\n\n", inv.Error)
			continue
		}
		if inv.Title != "" {
			fmt.Fprintf(&sb, "  Title:  %s\n", inv.Title)
		}
		fmt.Fprintf(&sb, "  Date:   %s\n", displayTime(inv.InvestigatedAt))
		fmt.Fprintf(&sb, "  Total findings: %d\n\n", inv.TotalFindings())

		writeList(&sb, "Emails", inv.Emails)
		writeList(&sb, "Bitcoin addresses", inv.BTCAddresses)
		writeList(&sb, "Monero addresses", inv.MoneroAddresses)
		writeList(&sb, "Ethereum addresses", inv.EthereumAddresses)
		writeList(&sb, "Onion services", inv.OnionAddresses)
		writeList(&sb, "External links", inv.ExternalLinks)

		if inv.HasServerStatus {
			sb.WriteString("  [!] Apache server-status is exposed\n")
			if w.verbose {
				for _, line := range strings.Split(inv.ServerStatusContent, "\n") {
					fmt.Fprintf(&sb, "      %s\n", line)
				}
			}
			sb.WriteString("\n")
		}
	}

	writeFooter(&sb)
	return w.output.Write([]byte(sb.String()))
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	pad := max((ruleWidth-len(title))/2, 0)
	sb.WriteString(strings.Repeat(" ", pad) + title + "\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func writeList(sb *strings.Builder, name string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "  %s (%d)\n", name, len(items))
	for _, item := range items {
		fmt.Fprintf(sb, "    * %s\n", item)
	}
	sb.WriteString("\n")
}

func writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by onionwatch\n")
	sb.WriteString("https://github.com/nao1215/onionwatch\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
