package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/report"
	"github.com/spf13/cobra"
)

// addReportFlags registers the flags shared by commands that print reports.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
}

// applyReportFlags copies the report flags into cfg.
func applyReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	cfg.ReportFile, err = cmd.Flags().GetString("output")
	return err
}

// openReportOutput returns the report destination and a function closing it.
// Report files are created with 0600 permissions since they list monitored
// sites.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// newReportWriter picks the writer matching the report flags.
func newReportWriter(cfg *config.Config, output io.Writer, opts ...report.SimpleWriterOption) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, opts...)
	}
}
