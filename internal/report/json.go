package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/onionwatch/internal/model"
)

// JSONWriter outputs reports in JSON format.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string

	// version, when set, wraps output in a JSONReport envelope.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps every document in a JSONReport carrying version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport is the envelope used when a version is configured.
type JSONReport struct {
	// Version is the onionwatch version that produced the document.
	Version string `json:"version"`

	// Check is set for liveness runs.
	Check *CheckReport `json:"check,omitempty"`

	// Investigations is set for investigation runs.
	Investigations []*model.Investigation `json:"investigations,omitempty"`
}

// WriteCheck outputs the liveness report.
func (w *JSONWriter) WriteCheck(report *CheckReport) (int, error) {
	if w.version != "" {
		return w.writeJSON(&JSONReport{Version: w.version, Check: report})
	}
	return w.writeJSON(report)
}

// WriteInvestigations outputs the investigation results as an array.
func (w *JSONWriter) WriteInvestigations(results []*model.Investigation) (int, error) {
	if results == nil {
		results = []*model.Investigation{}
	}
	if w.version != "" {
		return w.writeJSON(&JSONReport{Version: w.version, Investigations: results})
	}
	return w.writeJSON(results)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
