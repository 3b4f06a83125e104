package tor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Default Manager settings.
const (
	DefaultSocksPort      = 9050
	DefaultControlPort    = 9051
	TorBrowserSocksPort   = 9150
	DefaultStartupTimeout = 5 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultStopGrace      = 5 * time.Second
	DefaultDataDir        = "tor_data"
	localhost             = "127.0.0.1"
	torrcName             = "torrc"
	cookieFileName        = "control_auth_cookie"
	opStart               = "Manager.Start"
)

// Ownership describes who is responsible for the Tor process behind the SOCKS port.
type Ownership int

const (
	// OwnershipNone means no Tor proxy is known.
	OwnershipNone Ownership = iota
	// OwnershipExternal means a proxy was already listening and was adopted.
	// onionwatch never terminates an external process.
	OwnershipExternal
	// OwnershipManaged means onionwatch launched the process and owns its lifetime.
	OwnershipManaged
)

// String returns the ownership name.
func (o Ownership) String() string {
	switch o {
	case OwnershipExternal:
		return "external"
	case OwnershipManaged:
		return "managed"
	default:
		return "none"
	}
}

// Status is a snapshot of the Manager state.
type Status struct {
	Running     bool
	SocksPort   int
	ControlPort int
	Ownership   Ownership
	// PID is the tor process ID when known. External processes are looked up
	// best-effort and may report zero.
	PID     int
	DataDir string
}

// CommandFunc builds the command used to launch tor.
type CommandFunc func(name string, args ...string) *exec.Cmd

// Manager discovers, launches, supervises and stops a local Tor SOCKS proxy.
// All start and stop decisions are serialized by one mutex, so concurrent
// Start calls spawn at most one process.
type Manager struct {
	mu sync.Mutex

	locator        *Locator
	logger         *slog.Logger
	command        CommandFunc
	dataDir        string
	reusePorts     []int
	socksPref      int
	controlPref    int
	startupTimeout time.Duration
	pollInterval   time.Duration
	stopGrace      time.Duration
	probeTimeout   time.Duration

	ownership   Ownership
	socksPort   int
	controlPort int
	proc        *process

	// listenerPID finds the owner of an external SOCKS port.
	listenerPID func(ctx context.Context, port int) int
}

// process is a launched tor child. done is closed once Wait returns,
// after which err holds the exit error.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
	logs *tailWriter
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLocator sets the executable locator.
func WithLocator(l *Locator) ManagerOption {
	return func(m *Manager) {
		m.locator = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithCommand replaces exec.Command when launching tor.
func WithCommand(fn CommandFunc) ManagerOption {
	return func(m *Manager) {
		m.command = fn
	}
}

// WithDataDir sets the directory holding torrc and Tor state.
func WithDataDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.dataDir = dir
	}
}

// WithReusePorts sets the ports probed for an already running proxy, in order.
func WithReusePorts(ports ...int) ManagerOption {
	return func(m *Manager) {
		m.reusePorts = ports
	}
}

// WithPreferredPorts sets the preferred SOCKS and control ports for a launched process.
func WithPreferredPorts(socks, control int) ManagerOption {
	return func(m *Manager) {
		m.socksPref = socks
		m.controlPref = control
	}
}

// WithStartupTimeout sets how long Start waits for the SOCKS port to open.
func WithStartupTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.startupTimeout = d
	}
}

// WithPollInterval sets the SOCKS port poll interval during startup.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// WithStopGrace sets how long Stop waits after SIGTERM before killing.
func WithStopGrace(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.stopGrace = d
	}
}

// WithProbeTimeout sets the timeout of each port probe.
func WithProbeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.probeTimeout = d
	}
}

// NewManager creates a Manager. Nothing is probed or launched until Start.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		command:        exec.Command,
		dataDir:        DefaultDataDir,
		reusePorts:     []int{DefaultSocksPort, TorBrowserSocksPort},
		socksPref:      DefaultSocksPort,
		controlPref:    DefaultControlPort,
		startupTimeout: DefaultStartupTimeout,
		pollInterval:   DefaultPollInterval,
		stopGrace:      DefaultStopGrace,
		probeTimeout:   DefaultProbeTimeout,
		listenerPID:    findListenerPID,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locator == nil {
		m.locator = NewLocator()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Start ensures a SOCKS proxy is available. It returns nil when a proxy is
// already running (no second process is spawned), when an existing proxy on
// one of the reuse ports is adopted, or when a newly launched tor opens its
// SOCKS port within the startup window. Otherwise it returns an *Error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.runningLocked(ctx) {
		return nil
	}

	for _, port := range m.reusePorts {
		if IsPortOpen(ctx, localhost, port, m.probeTimeout) {
			m.ownership = OwnershipExternal
			m.socksPort = port
			m.controlPort = 0
			m.logger.Info("using existing Tor proxy", "socks_port", port)
			return nil
		}
	}

	candidates := m.locator.Candidates()
	if len(candidates) == 0 {
		m.logger.Warn("tor executable not found",
			"hint", "install tor (apt install tor, brew install tor, or the Tor Browser) or set "+ExecutableEnv)
		return newError(KindExecutableNotFound, opStart, "no tor executable candidates", nil)
	}
	exe := candidates[0]

	socksPort := findFreePort(ctx, m.socksPref, FallbackPortLow, FallbackPortHigh, m.probeTimeout)
	controlPort := m.findControlPort(ctx, socksPort)

	if err := os.MkdirAll(m.dataDir, 0o700); err != nil {
		return newError(KindLaunchFailed, opStart, "failed to create data directory "+m.dataDir, err)
	}
	if err := writeTorrc(m.dataDir, socksPort, controlPort); err != nil {
		m.logger.Warn("failed to write torrc", "dir", m.dataDir, "error", err)
	}

	proc, err := m.launch(exe, socksPort, controlPort)
	if err != nil {
		return err
	}
	m.logger.Debug("tor process started", "pid", proc.cmd.Process.Pid, "exe", exe,
		"socks_port", socksPort, "control_port", controlPort)

	if err := m.waitForSocks(ctx, proc, socksPort); err != nil {
		return err
	}

	m.proc = proc
	m.ownership = OwnershipManaged
	m.socksPort = socksPort
	m.controlPort = controlPort
	m.logger.Info("Tor started", "pid", proc.cmd.Process.Pid, "socks_port", socksPort, "control_port", controlPort)
	return nil
}

// findControlPort picks the control port, never colliding with socksPort.
func (m *Manager) findControlPort(ctx context.Context, socksPort int) int {
	port := findFreePort(ctx, m.controlPref, FallbackPortLow, FallbackPortHigh, m.probeTimeout)
	if port != socksPort {
		return port
	}
	for p := socksPort + 1; p < FallbackPortHigh; p++ {
		if !IsPortOpen(ctx, localhost, p, m.probeTimeout) {
			return p
		}
	}
	return m.controlPref
}

// launch spawns tor and starts reaping it in the background.
func (m *Manager) launch(exe string, socksPort, controlPort int) (*process, error) {
	dataDir, err := filepath.Abs(m.dataDir)
	if err != nil {
		dataDir = m.dataDir
	}
	args := []string{
		"--SocksPort", strconv.Itoa(socksPort),
		"--ControlPort", strconv.Itoa(controlPort),
		"--DataDirectory", dataDir,
		"--CookieAuthentication", "1",
		"--CookieAuthFile", filepath.Join(dataDir, cookieFileName),
		"--Log", "notice stdout",
	}

	// tor must outlive the caller's context, so the command is not bound to ctx.
	cmd := m.command(exe, args...)
	logs := newTailWriter(m.logger, 20)
	cmd.Stdout = logs
	cmd.Stderr = logs

	if err := cmd.Start(); err != nil {
		return nil, newError(KindLaunchFailed, opStart, "failed to start "+exe, err)
	}

	p := &process{cmd: cmd, done: make(chan struct{}), logs: logs}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// waitForSocks polls the SOCKS port until it opens, the process exits,
// the startup window elapses or ctx is canceled.
func (m *Manager) waitForSocks(ctx context.Context, p *process, socksPort int) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(m.startupTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			return newError(KindProcessExited, opStart, withLogs("tor exited during startup", p.logs), p.err)
		case <-ctx.Done():
			m.terminate(p, 0)
			return newError(KindLaunchFailed, opStart, "startup canceled", ctx.Err())
		case <-timer.C:
			m.terminate(p, 0)
			return newError(KindStartupTimeout, opStart,
				withLogs(fmt.Sprintf("SOCKS port %d did not open within %s", socksPort, m.startupTimeout), p.logs), nil)
		case <-ticker.C:
			if IsPortOpen(ctx, localhost, socksPort, m.probeTimeout) {
				return nil
			}
		}
	}
}

func withLogs(msg string, logs *tailWriter) string {
	if tail := logs.Tail(); tail != "" {
		return msg + ": " + tail
	}
	return msg
}

// Stop terminates a managed process and never fails. External processes are
// left alone. Afterwards the recorded SOCKS port is probed again: if something
// still listens there the Manager reports it as an external proxy.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != nil {
		m.terminate(m.proc, m.stopGrace)
		m.proc = nil
	}

	if m.socksPort != 0 && IsPortOpen(context.Background(), localhost, m.socksPort, m.probeTimeout) {
		if m.ownership == OwnershipManaged {
			m.logger.Info("SOCKS port still open after stop, treating it as external", "socks_port", m.socksPort)
		}
		m.ownership = OwnershipExternal
		return
	}

	m.ownership = OwnershipNone
	m.socksPort = 0
	m.controlPort = 0
}

// terminate asks the process to exit, waits up to grace, then kills it.
// A zero grace kills immediately.
func (m *Manager) terminate(p *process, grace time.Duration) {
	if p.exited() {
		return
	}
	if grace > 0 {
		sig := terminateSignal(runtime.GOOS)
		if err := p.cmd.Process.Signal(sig); err != nil {
			// Windows cannot deliver Interrupt to a child; fall through to Kill.
			m.logger.Debug("terminate signal failed", "signal", sig, "error", err)
		} else {
			select {
			case <-p.done:
				return
			case <-time.After(grace):
				m.logger.Warn("tor did not exit after signal, killing", "signal", sig, "pid", p.cmd.Process.Pid)
			}
		}
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn("failed to kill tor", "pid", p.cmd.Process.Pid, "error", err)
		return
	}
	<-p.done
}

// terminateSignal is the polite stop signal for goos: Interrupt on
// Windows, SIGTERM elsewhere.
func terminateSignal(goos string) os.Signal {
	if goos == "windows" {
		return os.Interrupt
	}
	return syscall.SIGTERM
}

// runningLocked reports whether the current state is still valid and
// clears it when the proxy has gone away.
func (m *Manager) runningLocked(ctx context.Context) bool {
	switch m.ownership {
	case OwnershipManaged:
		if m.proc != nil && !m.proc.exited() {
			return true
		}
		m.logger.Warn("managed tor process exited", "socks_port", m.socksPort)
	case OwnershipExternal:
		if IsPortOpen(ctx, localhost, m.socksPort, m.probeTimeout) {
			return true
		}
		m.logger.Warn("external Tor proxy went away", "socks_port", m.socksPort)
	default:
		return false
	}
	m.ownership = OwnershipNone
	m.proc = nil
	m.socksPort = 0
	m.controlPort = 0
	return false
}

// Status returns a snapshot of the proxy state. A managed process that died
// or an external proxy that closed its port is reported as not running.
// Status does not modify the Manager; the next Start reconciles the state.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.Lock()
	st := Status{
		SocksPort:   m.socksPort,
		ControlPort: m.controlPort,
		Ownership:   m.ownership,
		DataDir:     m.dataDir,
	}
	var pid int
	if m.ownership == OwnershipManaged && m.proc != nil && !m.proc.exited() {
		pid = m.proc.cmd.Process.Pid
	}
	m.mu.Unlock()

	// Process and port lookups run unlocked; a process scan can be slow.
	switch st.Ownership {
	case OwnershipManaged:
		if pid > 0 {
			st.Running = pidAlive(ctx, pid)
			st.PID = pid
		}
	case OwnershipExternal:
		st.Running = IsPortOpen(ctx, localhost, st.SocksPort, m.probeTimeout)
		if st.Running {
			st.PID = m.listenerPID(ctx, st.SocksPort)
		}
	}
	return st
}

// SocksAddr returns the "host:port" of the SOCKS proxy, or "" when none is known.
func (m *Manager) SocksAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.socksPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", localhost, m.socksPort)
}

// writeTorrc writes the settings the process is launched with so a user can
// start the same instance manually.
func writeTorrc(dir string, socksPort, controlPort int) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SocksPort %d\n", socksPort)
	fmt.Fprintf(&b, "ControlPort %d\n", controlPort)
	fmt.Fprintf(&b, "DataDirectory %s\n", absDir)
	b.WriteString("Log notice stdout\n")
	return os.WriteFile(filepath.Join(dir, torrcName), []byte(b.String()), 0o600)
}
