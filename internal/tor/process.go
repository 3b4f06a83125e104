package tor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	gps "github.com/shirou/gopsutil/v3/process"
)

// pidAlive reports whether pid still exists. Lookup errors are treated as alive
// so a transient failure does not mark a healthy process dead.
func pidAlive(ctx context.Context, pid int) bool {
	exists, err := gps.PidExistsWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return true
	}
	return exists
}

// findListenerPID returns the PID of a tor process listening on port, or zero.
// Only processes whose name contains "tor" are inspected.
func findListenerPID(ctx context.Context, port int) int {
	procs, err := gps.ProcessesWithContext(ctx)
	if err != nil {
		return 0
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // process may have exited
		}
		if !strings.Contains(strings.ToLower(name), "tor") {
			continue
		}
		conns, err := p.ConnectionsWithContext(ctx)
		if err != nil {
			continue
		}
		for _, c := range conns {
			if c.Status == "LISTEN" && int(c.Laddr.Port) == port {
				return int(p.Pid)
			}
		}
	}
	return 0
}

// tailWriter forwards tor's stdout to the logger line by line and keeps the
// last few lines for startup error messages.
type tailWriter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	limit   int
	lines   []string
	partial []byte
}

func newTailWriter(logger *slog.Logger, limit int) *tailWriter {
	return &tailWriter{logger: logger, limit: limit}
}

// Write implements io.Writer.
func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := append(w.partial, p...)
	parts := bytes.Split(data, []byte("\n"))
	for _, line := range parts[:len(parts)-1] {
		text := strings.TrimSpace(string(line))
		if text == "" {
			continue
		}
		w.logger.Debug("tor", "line", text)
		w.lines = append(w.lines, text)
		if len(w.lines) > w.limit {
			w.lines = w.lines[len(w.lines)-w.limit:]
		}
	}
	w.partial = append([]byte(nil), parts[len(parts)-1]...)
	return len(p), nil
}

// Tail returns the retained lines joined by " | ".
func (w *tailWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	lines := w.lines
	if len(w.partial) > 0 {
		lines = append(append([]string(nil), lines...), strings.TrimSpace(string(w.partial)))
	}
	return strings.Join(lines, " | ")
}
