package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/nao1215/onionwatch/internal/fetch"
	"github.com/nao1215/onionwatch/internal/model"
	"github.com/spf13/cobra"
)

// errNotFound is returned by fetch --probe when the URL does not answer 200.
var errNotFound = errors.New("not found")

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a single URL through the selected transport",
		Long: `Fetch retrieves one URL the same way check and investigate do and writes
the response body to stdout. The status line, content type and final URL
are written to stderr.

With --resource the body is written as raw bytes and the content type is
corrected from the URL extension when the server mislabels an asset.
With --probe nothing is written; the command fails unless the URL answers
with HTTP 200.

Examples:
  onionwatch fetch http://<address>.onion/
  onionwatch fetch --resource http://<address>.onion/logo.png > logo.png
  onionwatch fetch --probe http://<address>.onion/server-status`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchCmd,
	}

	cmd.Flags().Bool("resource", false, "Fetch as a binary resource")
	cmd.Flags().Bool("probe", false, "Only report whether the URL answers with HTTP 200")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout, "Request timeout")
	cmd.Flags().Bool("gateway", false, "Use the Tor2Web gateway even outside cloud environments")
	cmd.MarkFlagsMutuallyExclusive("resource", "probe")

	return cmd
}

func runFetchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
			return err
		}
	}
	if cfg.ForceGateway, err = cmd.Flags().GetBool("gateway"); err != nil {
		return err
	}
	resource, err := cmd.Flags().GetBool("resource")
	if err != nil {
		return err
	}
	probe, err := cmd.Flags().GetBool("probe")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg.Verbose)
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	client := fetch.NewClient(ctx, cfg, fetch.WithLogger(logger))
	defer client.Close()

	target := args[0]
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	if probe {
		if !client.ProbeExists(ctx, target, cfg.Timeout) {
			return fmt.Errorf("%s: %w", target, errNotFound)
		}
		fmt.Fprintf(stderr, "%s: found\n", target)
		return nil
	}

	var result model.FetchResult
	if resource {
		result = client.FetchResource(ctx, target, cfg.Timeout)
	} else {
		result = client.FetchContent(ctx, target, cfg.Timeout)
	}
	return writeFetchResult(stdout, stderr, result, resource)
}

// writeFetchResult writes the body to out and the response summary to info.
func writeFetchResult(out, info io.Writer, result model.FetchResult, raw bool) error {
	if !result.Success {
		return fmt.Errorf("fetch failed: %s", result.Reason())
	}

	fmt.Fprintf(info, "HTTP %d  %s\n", result.StatusCode, result.ContentType)
	if result.FinalURL != "" {
		fmt.Fprintf(info, "URL: %s\n", result.FinalURL)
	}

	var err error
	if raw {
		_, err = out.Write(result.Content)
	} else {
		_, err = io.WriteString(out, result.Text)
	}
	return err
}
