package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/database"
	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/liveness"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/nao1215/onionwatch/internal/progress"
	"github.com/nao1215/onionwatch/internal/report"
	"github.com/nao1215/onionwatch/internal/tor"
	"github.com/spf13/cobra"
)

// errNoTargets is returned when a command has nothing to work on.
var errNoTargets = errors.New("no targets provided (pass URLs as arguments, --list, or --from-db)")

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [url...]",
		Short: "Check whether onion sites are alive",
		Long: `Check fetches every target once and reports it alive when it answers
with HTTP 200. Any other status, a timeout, or a connection failure marks
the target dead.

Targets come from the arguments, from a list file (one URL per line,
'#' starts a comment), or from links stored by earlier runs. Results are
stored in the onionwatch database unless --no-save is given.

Examples:
  # Check a single site
  onionwatch check http://<address>.onion/

  # Check a list with 50 workers and no pause between results
  onionwatch check --list links.txt -n 50 --delay 0s

  # Re-check every stored link and write a Markdown report
  onionwatch check --from-db -m -o report.md

  # Force the Tor2Web gateway
  onionwatch check --gateway http://<address>.onion/`,
		Args: cobra.ArbitraryArgs,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("list", "l", "", "File with one target URL per line")
	cmd.Flags().Bool("from-db", false, "Check links stored in the database")
	cmd.Flags().Bool("unchecked", false, "With --from-db, only check links never checked before")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency, "Maximum number of concurrent checks")
	cmd.Flags().Duration("delay", config.DefaultCheckDelay, "Pause after each completed check")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	cmd.Flags().Float64("rate-limit", 0, "Maximum requests per second (0 disables)")
	cmd.Flags().Bool("gateway", false, "Use the Tor2Web gateway even outside cloud environments")
	cmd.Flags().Bool("alive-only", false, "List only alive targets in the text report")
	cmd.Flags().Bool("no-save", false, "Do not store results in the database")
	cmd.Flags().BoolP("quiet", "q", false, "Do not print progress lines")
	addReportFlags(cmd)

	return cmd
}

// checkOptions holds the check flags that do not live in config.Config.
type checkOptions struct {
	listFile  string
	fromDB    bool
	unchecked bool
	aliveOnly bool
	quiet     bool
	save      bool
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildCheckConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	urls, err := collectURLs(args, opts.listFile)
	if err != nil {
		return err
	}
	if err := validateTargetURLs(urls); err != nil {
		return err
	}

	var store *database.Store
	if cfg.SaveToDB || opts.fromDB {
		store, err = database.Open(cfg.DatabasePath(), database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close() //nolint:errcheck // read-only use after the run
		logger.Info("database opened", "path", store.Path())
	}

	targets, err := buildTargets(ctx, store, urls, opts)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errNoTargets
	}

	runID := uuid.NewString()
	client := fetch.NewClient(ctx, cfg, fetch.WithLogger(logger), fetch.WithIsolation(runID))
	defer client.Close()

	checkerOpts := []liveness.Option{
		liveness.WithTimeout(cfg.Timeout),
		liveness.WithDelay(cfg.CheckDelay),
		liveness.WithLogger(logger),
	}
	if cfg.SaveToDB && store != nil {
		checkerOpts = append(checkerOpts, liveness.WithRecorder(store))
	}
	if cfg.RateLimit > 0 {
		checkerOpts = append(checkerOpts, liveness.WithRateLimit(cfg.RateLimit, cfg.Concurrency))
	}
	checker := liveness.NewChecker(client, checkerOpts...)

	tracker := progress.NewTracker(progress.DefaultTTL)
	tracker.Begin(runID, len(targets))

	var onProgress func(model.LivenessRecord)
	if opts.quiet {
		onProgress = tracker.Callback(runID)
	} else {
		onProgress = progressPrinter(tracker, runID, cmd.ErrOrStderr())
	}

	checkReport := &report.CheckReport{
		Transport: client.Mode().String(),
		Gateway:   client.GatewayEndpoint(),
		SocksAddr: client.SocksAddr(),
		Degraded:  client.Degraded(),
		StartedAt: time.Now(),
	}
	checkReport.Summary = checker.CheckBulk(ctx, targets, cfg.Concurrency, onProgress)
	checkReport.FinishedAt = time.Now()
	tracker.Finish(runID)

	logger.Info("liveness check finished",
		"run_id", runID,
		"alive", checkReport.Summary.Alive,
		"dead", checkReport.Summary.Dead,
		"elapsed", checkReport.Elapsed(),
	)

	output, closeOutput, err := openReportOutput(cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer closeOutput() //nolint:errcheck // write errors are reported by the writer

	writer := newReportWriter(cfg, output, report.WithAliveOnly(opts.aliveOnly), report.WithVerbose(cfg.Verbose))
	if _, err := writer.WriteCheck(checkReport); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return ctx.Err()
}

// buildCheckConfig loads the configuration and applies the check flags.
func buildCheckConfig(cmd *cobra.Command) (*config.Config, checkOptions, error) {
	var opts checkOptions
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("delay") {
		if cfg.CheckDelay, err = flags.GetDuration("delay"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("rate-limit") {
		if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
			return nil, opts, err
		}
	}
	if cfg.ForceGateway, err = flags.GetBool("gateway"); err != nil {
		return nil, opts, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, opts, err
	}
	cfg.SaveToDB = !noSave
	opts.save = cfg.SaveToDB

	if err := applyReportFlags(cmd, cfg); err != nil {
		return nil, opts, err
	}

	if opts.listFile, err = flags.GetString("list"); err != nil {
		return nil, opts, err
	}
	if opts.fromDB, err = flags.GetBool("from-db"); err != nil {
		return nil, opts, err
	}
	if opts.unchecked, err = flags.GetBool("unchecked"); err != nil {
		return nil, opts, err
	}
	if opts.aliveOnly, err = flags.GetBool("alive-only"); err != nil {
		return nil, opts, err
	}
	if opts.quiet, err = flags.GetBool("quiet"); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

// collectURLs merges args and the list file, dropping duplicates while
// keeping the first occurrence's position.
func collectURLs(args []string, listFile string) ([]string, error) {
	urls := append([]string(nil), args...)
	if listFile != "" {
		f, err := os.Open(listFile) //nolint:gosec // user-provided list path
		if err != nil {
			return nil, fmt.Errorf("failed to open target list: %w", err)
		}
		defer f.Close() //nolint:errcheck // read-only

		listed, err := readTargetList(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read target list %s: %w", listFile, err)
		}
		urls = append(urls, listed...)
	}
	return dedupe(urls), nil
}

// readTargetList returns the non-empty lines of r. Lines starting with '#'
// are comments.
func readTargetList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// validateTargetURLs rejects URLs that are not absolute http(s) or that name
// a malformed or v2 onion address.
func validateTargetURLs(urls []string) error {
	for _, u := range urls {
		if err := tor.CheckTargetURL(u); err != nil {
			return fmt.Errorf("invalid target %q: %w", u, err)
		}
	}
	return nil
}

// buildTargets turns urls into targets. Without a store, targets are
// numbered from 1. With a store and opts.save, every URL is stored as a
// link and the link IDs are used. With --from-db, stored links not named
// in urls are appended. When nothing is saved the store is only read: URLs
// already stored keep their ID and new ones are numbered after the
// highest stored ID.
func buildTargets(ctx context.Context, store *database.Store, urls []string, opts checkOptions) ([]model.Target, error) {
	targets := make([]model.Target, 0, len(urls))
	if store == nil {
		for i, u := range urls {
			targets = append(targets, model.Target{ID: int64(i + 1), URL: u})
		}
		return targets, nil
	}

	var (
		stored []database.Link
		err    error
	)
	switch {
	case opts.fromDB && opts.unchecked:
		stored, err = store.ListUnchecked(ctx)
	case opts.fromDB:
		stored, err = store.ListLinks(ctx, "")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list stored links: %w", err)
	}

	seen := make(map[int64]struct{}, len(urls))
	if opts.save {
		for _, u := range urls {
			id, err := store.UpsertLink(ctx, u, "")
			if err != nil {
				return nil, fmt.Errorf("failed to store link %s: %w", u, err)
			}
			seen[id] = struct{}{}
			targets = append(targets, model.Target{ID: id, URL: u})
		}
	} else {
		byURL := make(map[string]int64, len(stored))
		var next int64
		for _, l := range stored {
			byURL[l.URL] = l.ID
			next = max(next, l.ID)
		}
		for _, u := range urls {
			id, ok := byURL[u]
			if !ok {
				next++
				id = next
			}
			seen[id] = struct{}{}
			targets = append(targets, model.Target{ID: id, URL: u})
		}
	}

	if !opts.fromDB {
		return targets, nil
	}
	for _, link := range stored {
		if _, ok := seen[link.ID]; ok {
			continue
		}
		targets = append(targets, link.Target())
	}
	return targets, nil
}

// progressPrinter records each result in tracker and prints one progress
// line per completed target. CheckBulk calls it from a single goroutine.
func progressPrinter(tracker *progress.Tracker, runID string, w io.Writer) func(model.LivenessRecord) {
	return func(record model.LivenessRecord) {
		tracker.Observe(runID, record)
		snap, ok := tracker.Get(runID)
		if !ok {
			return
		}
		detail := record.Reason
		if record.IsAlive() {
			detail = fmt.Sprintf("%d %.2fs", record.StatusCode, record.ResponseTimeSeconds())
		}
		fmt.Fprintf(w, "[%d/%d %3d%%] alive=%d %-5s %s %s\n",
			snap.Checked, snap.Total, snap.Percent(), snap.AliveCount(),
			record.Status, record.URL, detail)
		slog.Debug("progress", "run_id", runID, "checked", snap.Checked, "total", snap.Total)
	}
}
