package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "onionwatch"

	// DefaultTimeout bounds a single fetch. Tor round trips through six relays,
	// so this is generous compared to clearnet clients.
	DefaultTimeout = 30 * time.Second

	// DefaultConcurrency is the maximum number of concurrent liveness checks.
	DefaultConcurrency = 20

	// DefaultCheckDelay is the pause after each completed check.
	DefaultCheckDelay = 500 * time.Millisecond

	// DefaultTorStartupTimeout is how long to wait for a launched tor to open its SOCKS port.
	DefaultTorStartupTimeout = 5 * time.Second

	// DefaultUserAgent is a common browser string. Onion services and
	// gateways frequently block anything that looks like a scanner.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultDatabaseFile is the SQLite file name inside DataDir.
	DefaultDatabaseFile = "onionwatch.db"

	// TorDataDirName is the Tor data directory name inside DataDir.
	TorDataDirName = "tor_data"

	// EnvTorDataDir overrides TorDataDir.
	EnvTorDataDir = "TOR_DATA_DIR"

	// EnvTorExecutable overrides TorExecutable.
	EnvTorExecutable = "TOR_EXE"
)

// DefaultGateways returns the Tor2Web gateways in preference order.
func DefaultGateways() []string {
	return []string{"tor2web.org", "onion.to", "onion.ws", "onion.sh", "onion.ly"}
}

// DefaultCloudMarkers returns the environment variables whose presence
// indicates a cloud sandbox where a local tor cannot run.
func DefaultCloudMarkers() []string {
	return []string{"RENDER", "DYNO", "RAILWAY_ENVIRONMENT", "VERCEL", "NETLIFY", "AWS_EXECUTION_ENV"}
}

// Config holds all configuration options for onionwatch.
// It is populated from defaults, the optional YAML file, environment
// variables and CLI flags, in that order, and passed down explicitly.
type Config struct {
	// Timeout bounds each fetch.
	Timeout time.Duration

	// Concurrency is the maximum number of checks in flight.
	Concurrency int

	// CheckDelay is the pause after each completed check before the next
	// completion is accepted.
	CheckDelay time.Duration

	// RateLimit caps check starts per second. Zero disables the limiter.
	RateLimit float64

	// Gateways are the Tor2Web gateway hostnames; only the first is used.
	Gateways []string

	// CloudMarkers are environment variables that switch to gateway mode.
	CloudMarkers []string

	// ForceGateway selects gateway mode regardless of the environment.
	ForceGateway bool

	// TorExecutable is tried before any other tor location.
	TorExecutable string

	// TorDataDir holds torrc and the Tor state of a launched process.
	TorDataDir string

	// TorStartupTimeout bounds how long a launched tor may take to open its SOCKS port.
	TorStartupTimeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize caps response bodies in bytes.
	MaxBodySize int64

	// DataDir holds the database. Defaults to the XDG data directory.
	DataDir string

	// SaveToDB persists check results and investigations.
	SaveToDB bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit configuration file. When empty the
	// .onionwatch file in the current or home directory is used if present.
	ConfigFilePath string

	// JSONReport selects JSON output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	dataDir := XDGDataDir()
	return &Config{
		Timeout:           DefaultTimeout,
		Concurrency:       DefaultConcurrency,
		CheckDelay:        DefaultCheckDelay,
		Gateways:          DefaultGateways(),
		CloudMarkers:      DefaultCloudMarkers(),
		TorDataDir:        filepath.Join(dataDir, TorDataDirName),
		TorStartupTimeout: DefaultTorStartupTimeout,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		DataDir:           dataDir,
		SaveToDB:          true,
	}
}

// ApplyEnv overrides Tor settings from TOR_DATA_DIR and TOR_EXE.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvTorDataDir); v != "" {
		c.TorDataDir = v
	}
	if v := getenv(EnvTorExecutable); v != "" {
		c.TorExecutable = v
	}
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DefaultDatabaseFile)
}

// XDGDataDir returns the XDG data directory for onionwatch.
// On Linux: ~/.local/share/onionwatch
// On macOS: ~/Library/Application Support/onionwatch
// On Windows: %LOCALAPPDATA%\onionwatch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for onionwatch.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.CheckDelay < 0 {
		return ErrInvalidCheckDelay
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if len(c.Gateways) == 0 {
		return ErrNoGateway
	}
	if c.TorStartupTimeout <= 0 {
		return ErrInvalidStartupTimeout
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}
