package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ws",
		Short: "Call JSON web services. Typed results, no boilerplate.",
		Long: `ws calls JSON web services from the command line.

Every call goes through the same pipeline: the request is adapted
(authentication, rate limiting, request IDs), sent, retried when the
retry policy says so, and its response is parsed and checked before
anything is printed.

Settings come from .ws.yaml (or .ws.json) in the current directory,
WS_* environment variables and flags, in increasing precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(root)

	root.AddCommand(
		newCallCmd(opts, verbGet),
		newCallCmd(opts, verbPost),
		newCallCmd(opts, verbPut),
		newCallCmd(opts, verbDelete),
		newBenchCmd(opts),
		newHistoryCmd(opts),
		newMockCmd(),
		newInitCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withExitCode(ExitUsageError, err)
	})
	return root
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(execute(rootCmd, os.Args[1:], os.Stderr))
}

// execute runs root with args and returns the process exit code. Errors not
// already shown by an output formatter are written to stderr.
func execute(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if !errors.As(err, &ee) || !ee.reported {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(stderr, "%s %v\n", red("Error:"), err)
	}
	return exitCode(err)
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
