package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/onionwatch/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteCheck outputs the liveness report.
func (w *MarkdownWriter) WriteCheck(report *CheckReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("onionwatch Liveness Report")
	md.PlainText("")

	rows := [][]string{
		{"Transport", report.Transport},
		{"Started", displayTime(report.StartedAt)},
		{"Elapsed", report.Elapsed().Round(10*time.Millisecond).String()},
	}
	if report.Gateway != "" {
		rows = append(rows, []string{"Gateway", "`" + report.Gateway + "`"})
	}
	if report.SocksAddr != "" {
		rows = append(rows, []string{"SOCKS proxy", "`" + report.SocksAddr + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	summary := report.Summary
	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"🟢 Alive", strconv.Itoa(summary.Alive)},
			{"🔴 Dead", strconv.Itoa(summary.Dead)},
			{"**Total**", "**" + strconv.Itoa(summary.Total()) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total() > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Liveness"),
			piechart.WithShowData(true),
		)
		if summary.Alive > 0 {
			chart.LabelAndIntValue("Alive", uint64(summary.Alive))
		}
		if summary.Dead > 0 {
			chart.LabelAndIntValue("Dead", uint64(summary.Dead))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case report.Degraded:
		md.Warning("Tor was unavailable; targets were fetched over direct connections and onion hosts could not resolve.")
	case summary.Total() == 0:
		md.Note("No targets were checked.")
	case summary.Alive == 0:
		md.Cautionf("All %d target(s) are dead.", summary.Dead)
	case summary.Dead > 0:
		md.Importantf("%d of %d target(s) are dead.", summary.Dead, summary.Total())
	default:
		md.Tip("All targets are alive.")
	}
	md.PlainText("")

	md.H2("Targets")
	md.PlainText("")
	if len(summary.Records) == 0 {
		md.PlainText("No targets.")
	} else {
		records := make([][]string, len(summary.Records))
		for i, r := range summary.Records {
			code, elapsed, reason := "-", "-", "-"
			if r.StatusCode != 0 {
				code = strconv.Itoa(r.StatusCode)
			}
			if r.IsAlive() {
				elapsed = fmt.Sprintf("%.2fs", r.ResponseTimeSeconds())
			} else {
				reason = truncateString(r.Reason, 60)
			}
			records[i] = []string{truncateString(r.URL, 80), string(r.Status), code, elapsed, reason}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Status", "Code", "Time", "Reason"},
			Rows:   records,
		})
	}
	md.PlainText("")

	writeMarkdownFooter(md)
	return len(md.String()), md.Build()
}

// WriteInvestigations outputs the investigation results.
func (w *MarkdownWriter) WriteInvestigations(results []*model.Investigation) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("onionwatch Investigation Report")
	md.PlainText("")

	if len(results) == 0 {
		md.PlainText("No investigations.")
		md.PlainText("")
	}

	for _, inv := range results {
		md.H2(inv.URL)
		md.PlainText("")

		if !inv.Success {
			md.Cautionf("Investigation failed: %s", inv.Error)
			md.PlainText("")
			continue
		}

		rows := [][]string{
			{"Date", displayTime(inv.InvestigatedAt)},
			{"Emails", strconv.Itoa(len(inv.Emails))},
			{"Bitcoin", strconv.Itoa(len(inv.BTCAddresses))},
			{"Monero", strconv.Itoa(len(inv.MoneroAddresses))},
			{"Ethereum", strconv.Itoa(len(inv.EthereumAddresses))},
			{"Onion services", strconv.Itoa(len(inv.OnionAddresses))},
			{"External links", strconv.Itoa(len(inv.ExternalLinks))},
			{"**Total findings**", "**" + strconv.Itoa(inv.TotalFindings()) + "**"},
		}
		if inv.Title != "" {
			rows = append([][]string{{"Title", inv.Title}}, rows...)
		}
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows:   rows,
		})
		md.PlainText("")

		writeMarkdownList(md, "Emails", inv.Emails)
		writeMarkdownList(md, "Bitcoin addresses", inv.BTCAddresses)
		writeMarkdownList(md, "Monero addresses", inv.MoneroAddresses)
		writeMarkdownList(md, "Ethereum addresses", inv.EthereumAddresses)
		writeMarkdownList(md, "Onion services", inv.OnionAddresses)
		writeMarkdownList(md, "External links", inv.ExternalLinks)

		if inv.HasServerStatus {
			md.Warning("Apache server-status is exposed and may leak client IPs and virtual hosts.")
			md.PlainText("")
			md.Details("server-status", "\n```\n"+inv.ServerStatusContent+"\n```\n")
			md.PlainText("")
		}
	}

	writeMarkdownFooter(md)
	return len(md.String()), md.Build()
}

func writeMarkdownList(md *markdown.Markdown, title string, items []string) {
	if len(items) == 0 {
		return
	}
	md.H3(title)
	md.PlainText("")
	code := make([]string, len(items))
	for i, item := range items {
		code[i] = "`" + item + "`"
	}
	md.BulletList(code...)
	md.PlainText("")
}

func writeMarkdownFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [onionwatch](https://github.com/nao1215/onionwatch)*")
}
