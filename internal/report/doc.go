// Package report renders liveness check results and investigation results.
//
// Three formats are available:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: JSON for other tools
//   - MarkdownWriter: Markdown for sharing, built with nao1215/markdown
//
// All writers implement Writer so the CLI can pick one by flag.
package report
