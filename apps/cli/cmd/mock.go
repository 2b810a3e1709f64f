package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/mock"
)

type mockOptions struct {
	port    int
	delay   time.Duration
	verbose bool
	watch   bool
}

func newMockCmd() *cobra.Command {
	opts := &mockOptions{}
	cmd := &cobra.Command{
		Use:   "mock <routes-file>...",
		Short: "Serve canned JSON responses from a routes file",
		Long: `Start an HTTP mock server answering from YAML or JSON route files.

Each route names a method, a path and the response to send:

  routes:
    - method: GET
      path: /users/{{id}}
      response:
        status: 200
        body: '{"id": "{{id}}"}'
    - method: POST
      path: /jobs
      failFirst: 2
      response:
        status: 202
        body: '{"queued": true}'

Path parameters such as {{id}} are substituted into the body. failFirst
makes a route answer with a failure (503 unless "failure" says otherwise)
for its first calls, to exercise retry policies.

Examples:
  ws mock routes.yaml
  ws mock routes.yaml --port 3000 --delay 100ms
  ws mock users.yaml jobs.json --verbose
  ws mock routes.yaml --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMock(cmd, opts, args)
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", getEnvInt("WS_MOCK_PORT", 3000), "Port to run the mock server on (env: WS_MOCK_PORT)")
	cmd.Flags().DurationVarP(&opts.delay, "delay", "d", 0, "Delay to add to all responses (e.g., 100ms, 1s)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every route and request")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Reload the routes when a routes file changes")
	return cmd
}

func runMock(cmd *cobra.Command, opts *mockOptions, files []string) error {
	logger := zap.NewNop()
	if opts.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer func() { _ = logger.Sync() }()

	server := mock.NewServer(mock.WithDelay(opts.delay), mock.WithLogger(logger))
	for _, f := range files {
		if err := server.LoadFile(f); err != nil {
			return withExitCode(ExitConfigError, fmt.Errorf("failed to load %s: %w", f, err))
		}
	}
	routes := server.Routes()
	if len(routes) == 0 {
		return withExitCode(ExitConfigError, fmt.Errorf("no routes found in the provided files"))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Loaded %d routes from %d files\n", len(routes), len(files))
	fmt.Fprintf(out, "Mock server listening on http://localhost:%d\n", opts.port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		fmt.Fprintln(out, "Watching routes files for changes")
		go func() {
			err := server.Watch(ctx, files, func(err error) {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Reload failed, keeping previous routes: %v\n", err)
					return
				}
				fmt.Fprintf(out, "Reloaded %d routes\n", len(server.Routes()))
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Watch stopped: %v\n", err)
			}
		}()
	}

	if err := server.Start(ctx, fmt.Sprintf(":%d", opts.port)); err != nil {
		return withExitCode(ExitNetworkError, err)
	}
	fmt.Fprintln(out, "Mock server stopped")
	return nil
}
