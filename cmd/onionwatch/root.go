package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/onionwatch/internal/config"
	applog "github.com/nao1215/onionwatch/internal/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for onionwatch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onionwatch",
		Short: "Liveness monitor and investigator for Tor hidden services",
		Long: `onionwatch checks whether Tor hidden services (.onion sites) are alive
and collects public indicators from their pages.

Requests go through a local Tor SOCKS proxy. onionwatch reuses a running
Tor (ports 9050 and 9150) or launches its own tor process. In cloud
environments such as Render or Heroku, requests go through a Tor2Web
gateway instead. When Tor is unavailable, onionwatch falls back to direct
connections and onion hosts will not resolve.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .onionwatch in current or home directory)")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewInvestigateCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewTorCmd())
	cmd.AddCommand(NewDBCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig reads the configuration file named by --config (or found in
// the default locations) and the environment. Command flags are applied by
// the caller afterwards.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	cfg, err := config.Load(path, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// setupLogger installs the secure logger as the slog default and returns it.
func setupLogger(verbose bool) *slog.Logger {
	logger := applog.NewSecureLogger(os.Stderr, verbose)
	slog.SetDefault(logger)
	return logger
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
