package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// working and home directories.
const DefaultConfigFile = ".onionwatch"

// xdgConfigFile is the file name inside XDGConfigDir.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// LoadConfigFile parses the YAML file at path. Unknown keys are rejected
// so a misspelled setting does not silently fall back to its default.
// An empty file yields an empty File.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user or the search list
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cf, nil
}

// SearchPaths lists where a configuration file is looked for when none is
// given: the working directory, the XDG config directory, then home.
func SearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, DefaultConfigFile))
	}
	paths = append(paths, filepath.Join(XDGConfigDir(), xdgConfigFile))
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, DefaultConfigFile))
	}
	return paths
}

// FindConfigFile returns configPath when it exists, or the first existing
// entry of SearchPaths when configPath is empty. It returns "" otherwise.
func FindConfigFile(configPath string) string {
	candidates := SearchPaths()
	if configPath != "" {
		candidates = []string{configPath}
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Load builds the effective configuration: defaults, then the configuration
// file (explicit path or discovered), then TOR_DATA_DIR and TOR_EXE.
// A missing file is only an error when configPath was given explicitly.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg := NewConfig()
	cfg.ConfigFilePath = configPath

	path := FindConfigFile(configPath)
	switch {
	case path == "" && configPath != "":
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
	case path != "":
		file, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		file.Apply(cfg)
		cfg.ConfigFilePath = path
	}

	cfg.ApplyEnv(getenv)
	return cfg, nil
}
