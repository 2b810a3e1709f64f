package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ws/packages/core/config"
)

type initOptions struct {
	force   bool
	baseURL string
	json    bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a ws config file in the current directory",
		Long: `Create a ws config file in the current directory.

This writes .ws.yaml (or .ws.json with --json) holding the default
settings, ready to be edited. String settings may reference environment
variables as ${VAR} or ${VAR:-default}; a .env file next to the config
is read first.

Examples:
  ws init
  ws init --base-url https://api.example.com
  ws init --json --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Base URL to store in the config")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Write .ws.json instead of .ws.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	name := ".ws.yaml"
	if opts.json {
		name = ".ws.json"
	}
	path := filepath.Join(cwd, name)
	if !opts.force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()
	cfg.BaseURL = opts.baseURL
	if cfg.BaseURL == "" {
		cfg.BaseURL = "${API_URL:-http://localhost:3000}"
	}
	cfg.Headers = map[string]string{
		"Accept":     "application/json",
		"User-Agent": "ws/" + version,
	}
	cfg.Retries = 2
	cfg.RetryOn = []int{502, 503, 504}
	cfg.RequestID = config.BoolPtr(true)

	if err := cfg.SaveConfig(path); err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("failed to create config file: %w", err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", path)
	return nil
}
