package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/onionwatch/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/onionwatch.yaml
var configTemplate embed.FS

const templatePath = "templates/onionwatch.yaml"

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an onionwatch configuration file",
		Long: `Create a .onionwatch configuration file in the current directory.

The file lists every setting with its default value and a short
description: timeouts, concurrency, rate limiting, Tor2Web gateways
and Tor process options.

Examples:
  # Create .onionwatch in current directory
  onionwatch init

  # Create config file at a specific path
  onionwatch init -o myconfig.yaml

  # Overwrite an existing file
  onionwatch init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if err := writeFileWithDirs(outputPath, content); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", outputPath)
	return nil
}

// writeFileWithDirs writes data with 0600 permissions, creating parent
// directories as needed.
func writeFileWithDirs(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}
