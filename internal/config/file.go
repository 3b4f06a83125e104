package config

import "time"

// File is the structure of the .onionwatch YAML file.
// Every field is optional; unset fields keep the value already in Config.
type File struct {
	// Timeout bounds each fetch, e.g. "30s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Concurrency is the maximum number of checks in flight.
	Concurrency int `yaml:"concurrency,omitempty"`

	// CheckDelay is the pause after each completed check, e.g. "500ms".
	CheckDelay *time.Duration `yaml:"checkDelay,omitempty"`

	// RateLimit caps check starts per second.
	RateLimit float64 `yaml:"rateLimit,omitempty"`

	// Gateways lists Tor2Web gateway hostnames in preference order.
	Gateways []string `yaml:"gateways,omitempty"`

	// CloudMarkers lists environment variables that select gateway mode.
	CloudMarkers []string `yaml:"cloudMarkers,omitempty"`

	// TorExecutable is an explicit path to the tor binary.
	TorExecutable string `yaml:"torExecutable,omitempty"`

	// TorDataDir holds torrc and Tor state.
	TorDataDir string `yaml:"torDataDir,omitempty"`

	// TorStartupTimeout bounds Tor startup, e.g. "10s".
	TorStartupTimeout time.Duration `yaml:"torStartupTimeout,omitempty"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"userAgent,omitempty"`

	// MaxBodySize caps response bodies in bytes.
	MaxBodySize int64 `yaml:"maxBodySize,omitempty"`

	// DataDir holds the database.
	DataDir string `yaml:"dataDir,omitempty"`
}

// Apply copies the fields set in f onto cfg.
func (f *File) Apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}
	if f.Concurrency > 0 {
		cfg.Concurrency = f.Concurrency
	}
	if f.CheckDelay != nil {
		cfg.CheckDelay = *f.CheckDelay
	}
	if f.RateLimit > 0 {
		cfg.RateLimit = f.RateLimit
	}
	if len(f.Gateways) > 0 {
		cfg.Gateways = append([]string(nil), f.Gateways...)
	}
	if len(f.CloudMarkers) > 0 {
		cfg.CloudMarkers = append([]string(nil), f.CloudMarkers...)
	}
	if f.TorExecutable != "" {
		cfg.TorExecutable = f.TorExecutable
	}
	if f.TorDataDir != "" {
		cfg.TorDataDir = f.TorDataDir
	}
	if f.TorStartupTimeout > 0 {
		cfg.TorStartupTimeout = f.TorStartupTimeout
	}
	if f.UserAgent != "" {
		cfg.UserAgent = f.UserAgent
	}
	if f.MaxBodySize > 0 {
		cfg.MaxBodySize = f.MaxBodySize
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
}
