package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/report"
)

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		json     bool
		markdown bool
		check    func(report.Writer) bool
	}{
		{
			name:  "json",
			json:  true,
			check: func(w report.Writer) bool { _, ok := w.(*report.JSONWriter); return ok },
		},
		{
			name:     "markdown",
			markdown: true,
			check:    func(w report.Writer) bool { _, ok := w.(*report.MarkdownWriter); return ok },
		},
		{
			name:  "text by default",
			check: func(w report.Writer) bool { _, ok := w.(*report.SimpleWriter); return ok },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.NewConfig()
			cfg.JSONReport = tt.json
			cfg.MarkdownReport = tt.markdown
			if w := newReportWriter(cfg, &bytes.Buffer{}); !tt.check(w) {
				t.Errorf("unexpected writer %T", w)
			}
		})
	}
}

func TestOpenReportOutput(t *testing.T) {
	t.Parallel()

	t.Run("stdout when no file", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		out, closeFn, err := openReportOutput(config.NewConfig(), &stdout)
		if err != nil {
			t.Fatal(err)
		}
		if out != &stdout {
			t.Error("expected stdout")
		}
		if err := closeFn(); err != nil {
			t.Error(err)
		}
	})

	t.Run("file in new directory", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "run.md")

		for _, content := range []string{"old report that is longer", "new"} {
			out, closeFn, err := openReportOutput(cfg, &bytes.Buffer{})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := out.Write([]byte(content)); err != nil {
				t.Fatal(err)
			}
			if err := closeFn(); err != nil {
				t.Fatal(err)
			}
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "new" {
			t.Errorf("expected truncated file, got %q", data)
		}
		if runtime.GOOS != "windows" {
			info, err := os.Stat(cfg.ReportFile)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0o600 {
				t.Errorf("expected 0600, got %o", info.Mode().Perm())
			}
		}
	})
}
