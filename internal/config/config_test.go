package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewConfig verifies the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout to be 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default Concurrency is 20", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 20 {
			t.Errorf("expected Concurrency to be 20, got %d", cfg.Concurrency)
		}
	})

	t.Run("default CheckDelay is 500ms", func(t *testing.T) {
		t.Parallel()
		if cfg.CheckDelay != 500*time.Millisecond {
			t.Errorf("expected CheckDelay to be 500ms, got %v", cfg.CheckDelay)
		}
	})

	t.Run("default gateway is tor2web.org", func(t *testing.T) {
		t.Parallel()
		if len(cfg.Gateways) != 5 || cfg.Gateways[0] != "tor2web.org" {
			t.Errorf("unexpected Gateways %v", cfg.Gateways)
		}
	})

	t.Run("default cloud markers", func(t *testing.T) {
		t.Parallel()
		want := []string{"RENDER", "DYNO", "RAILWAY_ENVIRONMENT", "VERCEL", "NETLIFY", "AWS_EXECUTION_ENV"}
		if len(cfg.CloudMarkers) != len(want) {
			t.Fatalf("CloudMarkers = %v, expected %v", cfg.CloudMarkers, want)
		}
		for i := range want {
			if cfg.CloudMarkers[i] != want[i] {
				t.Errorf("CloudMarkers[%d] = %q, expected %q", i, cfg.CloudMarkers[i], want[i])
			}
		}
	})

	t.Run("Tor data dir lives in the data dir", func(t *testing.T) {
		t.Parallel()
		if cfg.TorDataDir != filepath.Join(cfg.DataDir, "tor_data") {
			t.Errorf("TorDataDir = %q", cfg.TorDataDir)
		}
		if cfg.DatabasePath() != filepath.Join(cfg.DataDir, "onionwatch.db") {
			t.Errorf("DatabasePath() = %q", cfg.DatabasePath())
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

// TestConfigValidate tests each validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "zero concurrency", modify: func(c *Config) { c.Concurrency = 0 }, wantErr: ErrInvalidConcurrency},
		{name: "negative delay", modify: func(c *Config) { c.CheckDelay = -time.Second }, wantErr: ErrInvalidCheckDelay},
		{name: "zero delay is fine", modify: func(c *Config) { c.CheckDelay = 0 }, wantErr: nil},
		{name: "negative rate", modify: func(c *Config) { c.RateLimit = -1 }, wantErr: ErrInvalidRateLimit},
		{name: "no gateways", modify: func(c *Config) { c.Gateways = nil }, wantErr: ErrNoGateway},
		{name: "zero startup timeout", modify: func(c *Config) { c.TorStartupTimeout = 0 }, wantErr: ErrInvalidStartupTimeout},
		{name: "negative body size", modify: func(c *Config) { c.MaxBodySize = -1 }, wantErr: ErrInvalidMaxBodySize},
		{
			name:    "json and markdown",
			modify:  func(c *Config) { c.JSONReport, c.MarkdownReport = true, true },
			wantErr: ErrConflictingReportFormats,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tc.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, expected %v", err, tc.wantErr)
			}
		})
	}
}

// TestApplyEnv tests environment overrides.
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.ApplyEnv(func(key string) string {
		return map[string]string{
			EnvTorDataDir:    "/srv/tor",
			EnvTorExecutable: "/opt/tor/tor",
		}[key]
	})
	if cfg.TorDataDir != "/srv/tor" {
		t.Errorf("TorDataDir = %q", cfg.TorDataDir)
	}
	if cfg.TorExecutable != "/opt/tor/tor" {
		t.Errorf("TorExecutable = %q", cfg.TorExecutable)
	}

	unchanged := NewConfig()
	unchanged.ApplyEnv(func(string) string { return "" })
	if unchanged.TorDataDir != NewConfig().TorDataDir || unchanged.TorExecutable != "" {
		t.Error("empty environment must not change the config")
	}
}

// TestLoadConfigFile tests YAML parsing.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("parses every key", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".onionwatch")
		content := `timeout: 45s
concurrency: 5
checkDelay: 0s
rateLimit: 2.5
gateways:
  - onion.ly
cloudMarkers:
  - MY_CLOUD
torExecutable: /usr/bin/tor
torDataDir: /tmp/tor
torStartupTimeout: 20s
userAgent: test-agent
maxBodySize: 1024
dataDir: /tmp/onionwatch
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFile() error: %v", err)
		}

		cfg := NewConfig()
		file.Apply(cfg)

		if cfg.Timeout != 45*time.Second {
			t.Errorf("Timeout = %v", cfg.Timeout)
		}
		if cfg.Concurrency != 5 {
			t.Errorf("Concurrency = %d", cfg.Concurrency)
		}
		if cfg.CheckDelay != 0 {
			t.Errorf("CheckDelay = %v, expected explicit zero to apply", cfg.CheckDelay)
		}
		if cfg.RateLimit != 2.5 {
			t.Errorf("RateLimit = %v", cfg.RateLimit)
		}
		if len(cfg.Gateways) != 1 || cfg.Gateways[0] != "onion.ly" {
			t.Errorf("Gateways = %v", cfg.Gateways)
		}
		if len(cfg.CloudMarkers) != 1 || cfg.CloudMarkers[0] != "MY_CLOUD" {
			t.Errorf("CloudMarkers = %v", cfg.CloudMarkers)
		}
		if cfg.TorExecutable != "/usr/bin/tor" || cfg.TorDataDir != "/tmp/tor" {
			t.Errorf("Tor settings = %q %q", cfg.TorExecutable, cfg.TorDataDir)
		}
		if cfg.TorStartupTimeout != 20*time.Second {
			t.Errorf("TorStartupTimeout = %v", cfg.TorStartupTimeout)
		}
		if cfg.UserAgent != "test-agent" || cfg.MaxBodySize != 1024 || cfg.DataDir != "/tmp/onionwatch" {
			t.Errorf("unexpected config %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("timeout: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "typo.yaml")
		if err := os.WriteFile(path, []byte("concurency: 4\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected misspelled key to be rejected")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "empty.yaml")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("LoadConfigFile() error: %v", err)
		}
		cfg := NewConfig()
		file.Apply(cfg)
		if cfg.Concurrency != DefaultConcurrency {
			t.Errorf("Concurrency = %d, expected default", cfg.Concurrency)
		}
	})

	t.Run("nil file applies nothing", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		var f *File
		f.Apply(cfg)
		if cfg.Timeout != DefaultTimeout {
			t.Error("nil file changed the config")
		}
	})
}

// TestLoad tests the combined loading order.
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("explicit file then environment", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("torDataDir: /from/file\nconcurrency: 3\n"), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path, func(key string) string {
			if key == EnvTorDataDir {
				return "/from/env"
			}
			return ""
		})
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if cfg.Concurrency != 3 {
			t.Errorf("Concurrency = %d, expected 3", cfg.Concurrency)
		}
		if cfg.TorDataDir != "/from/env" {
			t.Errorf("TorDataDir = %q, expected environment to win", cfg.TorDataDir)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q", cfg.ConfigFilePath)
		}
	})

	t.Run("explicit missing file is an error", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), func(string) string { return "" })
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestSearchPaths(t *testing.T) {
	t.Parallel()

	paths := SearchPaths()
	want := filepath.Join(XDGConfigDir(), "config.yaml")
	found := false
	for _, p := range paths {
		if p == want {
			found = true
		}
	}
	if !found {
		t.Errorf("SearchPaths() = %v, expected %s", paths, want)
	}
}

func TestFindConfigFileIgnoresDirectory(t *testing.T) {
	t.Parallel()

	if got := FindConfigFile(t.TempDir()); got != "" {
		t.Errorf("FindConfigFile(dir) = %q, expected empty", got)
	}
}
