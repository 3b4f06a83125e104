package main

import (
	"fmt"
	"io"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/database"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/spf13/cobra"
)

// NewDBCmd creates the db command group.
func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect stored links, checks and investigations",
	}

	cmd.AddCommand(newDBStatsCmd())
	cmd.AddCommand(newDBLinksCmd())
	cmd.AddCommand(newDBHistoryCmd())
	cmd.AddCommand(newDBShowCmd())

	return cmd
}

// openStore opens the database named by the configuration.
func openStore(cmd *cobra.Command) (*database.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Verbose)
	store, err := database.Open(cfg.DatabasePath(), database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newDBStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // read-only

			st, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database:       %s\n", store.Path())
			fmt.Fprintf(out, "Links:          %d (alive %d, dead %d, unchecked %d)\n", st.Links, st.Alive, st.Dead, st.Unchecked)
			fmt.Fprintf(out, "Checks:         %d\n", st.Checks)
			fmt.Fprintf(out, "Investigations: %d\n", st.Investigations)
			return nil
		},
	}
}

func newDBLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List stored links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := cmd.Flags().GetString("status")
			if err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // read-only

			var links []database.Link
			switch status {
			case "", database.StatusAlive, database.StatusDead:
				links, err = store.ListLinks(cmd.Context(), status)
			case "unchecked":
				links, err = store.ListUnchecked(cmd.Context())
			default:
				return fmt.Errorf("unknown status %q (use alive, dead or unchecked)", status)
			}
			if err != nil {
				return err
			}
			writeLinks(cmd.OutOrStdout(), links)
			return nil
		},
	}
	cmd.Flags().StringP("status", "s", "", "Filter by status: alive, dead or unchecked")
	return cmd
}

func newDBHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <url>",
		Short: "Show the liveness history of a link, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // read-only

			records, err := store.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of checks to show")
	return cmd
}

func newDBShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <url>",
		Short: "Print the stored investigation of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck // read-only

			inv, err := store.GetInvestigation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if inv == nil {
				return fmt.Errorf("no investigation stored for %s", args[0])
			}

			cfg := config.NewConfig()
			if err := applyReportFlags(cmd, cfg); err != nil {
				return err
			}
			output, closeOutput, err := openReportOutput(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOutput() //nolint:errcheck // write errors are reported by the writer

			_, err = newReportWriter(cfg, output).WriteInvestigations([]*model.Investigation{inv})
			return err
		},
	}
	addReportFlags(cmd)
	return cmd
}

func writeLinks(w io.Writer, links []database.Link) {
	if len(links) == 0 {
		fmt.Fprintln(w, "No links")
		return
	}
	for _, l := range links {
		status := l.Status
		if status == database.StatusUnchecked {
			status = "unchecked"
		}
		fmt.Fprintf(w, "%5d  %-9s %s", l.ID, status, l.URL)
		if l.Status == database.StatusAlive {
			fmt.Fprintf(w, "  %d %.2fs", l.StatusCode, l.ResponseTime)
		}
		if l.Title != "" {
			fmt.Fprintf(w, "  %q", l.Title)
		}
		fmt.Fprintln(w)
	}
}

func writeHistory(w io.Writer, records []model.LivenessRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No checks")
		return
	}
	for _, r := range records {
		detail := r.Reason
		if r.IsAlive() {
			detail = fmt.Sprintf("%d %.2fs", r.StatusCode, r.ResponseTimeSeconds())
		}
		fmt.Fprintf(w, "%s  %-5s %s\n", displayDate(r), r.Status, detail)
	}
}

func displayDate(r model.LivenessRecord) string {
	if r.CheckedAt.IsZero() {
		return "-"
	}
	return r.CheckedAt.Local().Format("2006-01-02 15:04:05")
}
