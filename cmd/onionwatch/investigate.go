package main

import (
	"fmt"
	"log/slog"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/database"
	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/investigate"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/spf13/cobra"
)

// NewInvestigateCmd creates the investigate command.
func NewInvestigateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "investigate [url...]",
		Short: "Collect public indicators from onion sites",
		Long: `Investigate fetches each site's front page and extracts email addresses,
Bitcoin, Monero and Ethereum addresses, other onion services and external
links. It also probes /server-status for an exposed Apache status page.

Sites are investigated one at a time with a pause between them.
Results are stored in the onionwatch database unless --no-save is given.

Examples:
  onionwatch investigate http://<address>.onion/
  onionwatch investigate --list sites.txt --json -o findings.json`,
		Args: cobra.ArbitraryArgs,
		RunE: runInvestigateCmd,
	}

	cmd.Flags().StringP("list", "l", "", "File with one URL per line")
	cmd.Flags().DurationP("timeout", "t", investigate.DefaultTimeout, "Timeout for each request")
	cmd.Flags().Duration("delay", investigate.DefaultDelay, "Pause between sites")
	cmd.Flags().Bool("gateway", false, "Use the Tor2Web gateway even outside cloud environments")
	cmd.Flags().Bool("no-save", false, "Do not store results in the database")
	addReportFlags(cmd)

	return cmd
}

func runInvestigateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyInvestigateFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	delay, err := cmd.Flags().GetDuration("delay")
	if err != nil {
		return err
	}
	listFile, err := cmd.Flags().GetString("list")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Verbose)
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	urls, err := collectURLs(args, listFile)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return errNoTargets
	}

	var store *database.Store
	if cfg.SaveToDB {
		store, err = database.Open(cfg.DatabasePath(), database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close() //nolint:errcheck // closed after the run
	}

	client := fetch.NewClient(ctx, cfg, fetch.WithLogger(logger))
	defer client.Close()

	investigator := investigate.New(client,
		investigate.WithTimeout(cfg.Timeout),
		investigate.WithDelay(delay),
		investigate.WithLogger(logger),
	)

	results := investigator.BulkInvestigate(ctx, urls, func(inv *model.Investigation) {
		saveInvestigation(cmd, store, inv, logger)
	})

	output, closeOutput, err := openReportOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer closeOutput() //nolint:errcheck // write errors are reported by the writer

	if _, err := newReportWriter(cfg, output).WriteInvestigations(results); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return ctx.Err()
}

func applyInvestigateFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cmd.Flags().Changed("timeout") {
		if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return err
		}
	}
	if cfg.ForceGateway, err = cmd.Flags().GetBool("gateway"); err != nil {
		return err
	}
	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return err
	}
	cfg.SaveToDB = !noSave
	return applyReportFlags(cmd, cfg)
}

// saveInvestigation stores inv and its link. Failed investigations are kept
// too so the database shows when a site was last tried.
func saveInvestigation(cmd *cobra.Command, store *database.Store, inv *model.Investigation, logger *slog.Logger) {
	fmt.Fprintf(cmd.ErrOrStderr(), "investigated %s: %d finding(s)\n", inv.URL, inv.TotalFindings())
	if store == nil {
		return
	}
	ctx := cmd.Context()
	if _, err := store.UpsertLink(ctx, inv.URL, inv.Title); err != nil {
		logger.Error("failed to store link", "url", inv.URL, "error", err)
	}
	if err := store.SaveInvestigation(ctx, inv); err != nil {
		logger.Error("failed to save investigation", "url", inv.URL, "error", err)
	}
}
