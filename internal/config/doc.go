// Package config holds onionwatch's runtime settings: fetch timeouts,
// liveness concurrency and pacing, gateway and cloud detection lists, Tor
// launch parameters and storage locations. Values come from defaults, an
// optional .onionwatch YAML file, the TOR_EXE and TOR_DATA_DIR environment
// variables, and CLI flags.
package config
