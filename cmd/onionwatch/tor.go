package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/tor"
	"github.com/spf13/cobra"
)

// NewTorCmd creates the tor command group.
func NewTorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tor",
		Short: "Manage the local Tor proxy",
		Long: `Manage the Tor SOCKS proxy used by check, investigate and fetch.

  status  shows running proxies and the tor executables onionwatch can find
  start   reuses or launches a Tor proxy and keeps it running until interrupted`,
	}

	cmd.AddCommand(newTorStatusCmd())
	cmd.AddCommand(newTorStartCmd())

	return cmd
}

func newTorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show Tor proxy status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogger(cfg.Verbose)

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			locator := tor.NewLocator(tor.WithOverride(cfg.TorExecutable))
			writeTorStatus(ctx, cmd.OutOrStdout(), locator.Candidates(), cfg.TorDataDir, probeSocksPorts)
			return nil
		},
	}
}

func newTorStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a Tor proxy and keep it running",
		Long: `Start reuses a Tor proxy already listening on 9050 or 9150, or launches
tor with its own data directory. The command stays in the foreground and
stops the launched process on Ctrl+C.

With --newnym, onionwatch asks the launched tor for fresh circuits at the
given interval. Tor ignores requests closer than about ten seconds apart.`,
		Args: cobra.NoArgs,
		RunE: runTorStartCmd,
	}
	cmd.Flags().Duration("newnym", 0, "Request a new identity at this interval (0 disables)")
	return cmd
}

func runTorStartCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interval, err := cmd.Flags().GetDuration("newnym")
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Verbose)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	manager := fetch.NewManager(cfg, logger)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start Tor: %w", err)
	}
	defer manager.Stop()

	out := cmd.OutOrStdout()
	st := manager.Status(ctx)
	fmt.Fprintf(out, "SOCKS proxy: %s (%s)\n", manager.SocksAddr(), st.Ownership)
	if st.PID > 0 {
		fmt.Fprintf(out, "PID:         %d\n", st.PID)
	}
	if st.Ownership == tor.OwnershipManaged {
		fmt.Fprintf(out, "Control:     127.0.0.1:%d\n", st.ControlPort)
		fmt.Fprintf(out, "Data dir:    %s\n", st.DataDir)
		if phase, err := manager.BootstrapPhase(ctx); err == nil {
			fmt.Fprintf(out, "Bootstrap:   %s\n", phase)
		} else {
			logger.Debug("bootstrap phase unavailable", "error", err)
		}
	} else if interval > 0 {
		logger.Warn("--newnym needs a tor launched by onionwatch; ignoring it")
		interval = 0
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	return superviseTor(ctx, manager, interval, logger)
}

// torSupervisor is the part of tor.Manager used while a proxy runs.
type torSupervisor interface {
	Status(ctx context.Context) tor.Status
	NewIdentity(ctx context.Context) error
}

// superviseTor blocks until ctx is done or the proxy goes away. A positive
// interval requests a new identity on every tick.
func superviseTor(ctx context.Context, sup torSupervisor, interval time.Duration, logger *slog.Logger) error {
	const healthInterval = 5 * time.Second

	health := time.NewTicker(healthInterval)
	defer health.Stop()

	var newnym <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		newnym = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-health.C:
			if !sup.Status(ctx).Running {
				return fmt.Errorf("tor proxy stopped: %w", tor.ErrProcessExited)
			}
		case <-newnym:
			if err := sup.NewIdentity(ctx); err != nil {
				logger.Warn("new identity request failed", "error", err)
			}
		}
	}
}

// socksProbe reports the state of the SOCKS proxy at addr.
type socksProbe func(ctx context.Context, addr string) tor.ProxyStatus

// probeSocksPorts checks addr with a SOCKS5 handshake through tor.Client.
func probeSocksPorts(ctx context.Context, addr string) tor.ProxyStatus {
	client, err := tor.NewClient(addr, tor.WithHandshakeTimeout(tor.DefaultProbeTimeout*4))
	if err != nil {
		return tor.ProxyStatusCannotConnect
	}
	return client.CheckConnection(ctx)
}

// writeTorStatus prints the well-known SOCKS ports and tor executables.
func writeTorStatus(ctx context.Context, out io.Writer, candidates []string, dataDir string, probe socksProbe) {
	fmt.Fprintln(out, "SOCKS proxies:")
	for _, port := range []int{tor.DefaultSocksPort, tor.TorBrowserSocksPort} {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		fmt.Fprintf(out, "  %-16s %s\n", addr, probe(ctx, addr))
	}

	fmt.Fprintln(out, "Tor executables:")
	if len(candidates) == 0 {
		fmt.Fprintf(out, "  none found (install tor or set %s)\n", tor.ExecutableEnv)
	}
	for i, c := range candidates {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Fprintf(out, "  %s %s\n", marker, c)
	}
	fmt.Fprintf(out, "Data dir: %s\n", dataDir)
}
