package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ws/packages/history"
)

type historyOptions struct {
	limit  int
	failed bool
	clear  bool
}

func newHistoryCmd(global *globalOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent calls",
		Long: `List the calls recorded in the history file, newest first.

Calls are recorded when a history file is configured, with the "history"
config setting, --history or WS_HISTORY.

Examples:
  ws history
  ws history -n 50 --failed
  ws history --clear`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, global, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of calls to show")
	cmd.Flags().BoolVar(&opts.failed, "failed", false, "Show failed calls only")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Delete all recorded calls")
	return cmd
}

func runHistory(cmd *cobra.Command, global *globalOptions, opts *historyOptions) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	if cfg.History == "" {
		return withExitCode(ExitConfigError, fmt.Errorf("no history file configured (set \"history\" in the config, --history or WS_HISTORY)"))
	}
	if cfg.GetNoColor() {
		color.NoColor = true
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	ctx := context.Background()

	if opts.clear {
		n, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d calls\n", n)
		return nil
	}

	entries, err := store.Recent(ctx, opts.limit, opts.failed)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No calls recorded")
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, e := range entries {
		mark := green("✓")
		outcome := ""
		if !e.OK {
			mark = red("✗")
			outcome = e.Kind
			if e.Status != 0 {
				outcome = fmt.Sprintf("%s %d", outcome, e.Status)
			}
			outcome = " " + red(outcome)
		}
		fmt.Fprintf(out, "%s %s %-6s %s%s %s\n",
			dim(e.Time.Format(time.DateTime)), mark, e.Method, e.URL, outcome,
			dim(fmt.Sprintf("(%dms)", e.Duration.Milliseconds())))
	}
	return nil
}
