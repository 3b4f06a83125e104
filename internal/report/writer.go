package report

import (
	"io"
	"time"

	"github.com/nao1215/onionwatch/internal/liveness"
	"github.com/nao1215/onionwatch/internal/model"
)

// Writer renders reports to an output.
type Writer interface {
	// WriteCheck outputs the result of a liveness run.
	WriteCheck(report *CheckReport) (int, error)

	// WriteInvestigations outputs investigation results.
	WriteInvestigations(results []*model.Investigation) (int, error)
}

// CheckReport is a liveness summary plus the context it was produced in.
type CheckReport struct {
	// Transport is the transport mode name.
	Transport string `json:"transport"`

	// Gateway is the Tor2Web gateway used in gateway mode.
	Gateway string `json:"gateway,omitempty"`

	// SocksAddr is the SOCKS proxy used in local mode.
	SocksAddr string `json:"socks_addr,omitempty"`

	// Degraded is true when local mode fell back to direct connections.
	Degraded bool `json:"degraded,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finished_at"`

	// Summary holds the counts and per-target records.
	Summary liveness.Summary `json:"summary"`
}

// Elapsed returns the run duration.
func (r *CheckReport) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MultiWriter writes to multiple Writers in order and stops at the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteCheck outputs the report to all Writers.
func (m *MultiWriter) WriteCheck(report *CheckReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteCheck(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteInvestigations outputs the results to all Writers.
func (m *MultiWriter) WriteInvestigations(results []*model.Investigation) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteInvestigations(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// displayTime formats a timestamp for human-readable reports.
func displayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
