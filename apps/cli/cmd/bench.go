package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/bench"
	"github.com/abdul-hamid-achik/ws/packages/params"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

type benchOptions struct {
	method      string
	params      []string
	requests    int
	duration    time.Duration
	concurrency int
	rate        float64
	thresholds  string
	noProgress  bool
	prometheus  string
}

func newBenchCmd(global *globalOptions) *cobra.Command {
	opts := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench <url>",
		Short: "Call an endpoint repeatedly and report latency percentiles",
		Long: `Call an endpoint repeatedly through the full ws pipeline and report
throughput, latency percentiles and failures by kind.

Every call is checked like a single call would be: a response that fails
parsing, the key path or the error field counts as a failure.

Thresholds make the command fail when not met, for use in CI:
  p50, p95, p99, max    upper latency bounds (p95<200ms)
  errors                upper failure share (errors<1%)
  rps                   lower throughput bound (rps>100)

Examples:
  ws bench /health -b http://localhost:8080
  ws bench /search -p q=go -n 1000 -C 20
  ws bench /health -n 500 --prometheus /var/lib/node_exporter/ws_bench.prom
  ws bench /orders --duration 30s --rate 50 --threshold "p95<300ms,errors<1%"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, global, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.method, "method", "X", "GET", "Verb to call: GET, POST, PUT or DELETE")
	f.StringArrayVarP(&opts.params, "param", "p", nil, "Parameter as key=value or key:=json (repeatable)")
	f.IntVarP(&opts.requests, "requests", "n", 100, "Number of calls, 0 for no limit (needs --duration)")
	f.DurationVarP(&opts.duration, "duration", "d", 0, "Stop issuing calls after this long")
	f.IntVarP(&opts.concurrency, "concurrency", "C", 10, "Calls in flight at once")
	f.Float64Var(&opts.rate, "rate", 0, "Calls per second, 0 for as fast as possible")
	f.StringVar(&opts.thresholds, "threshold", "", `Pass/fail thresholds, e.g. "p95<200ms,errors<1%"`)
	f.BoolVar(&opts.noProgress, "no-progress", false, "Do not print running totals")
	f.StringVar(&opts.prometheus, "prometheus", "", "Also write the summary to this file in Prometheus text format")
	return cmd
}

// voidCall returns the Void variant of the client's factory for verb
func voidCall(w *ws.WS, verb ws.Verb) (func(context.Context, string, *params.Params) *async.Call[async.Void], error) {
	switch verb {
	case ws.VerbGet:
		return w.GetVoid, nil
	case ws.VerbPost:
		return w.PostVoid, nil
	case ws.VerbPut:
		return w.PutVoid, nil
	case ws.VerbDelete:
		return w.DeleteVoid, nil
	}
	return nil, fmt.Errorf("unsupported method %q (want GET, POST, PUT or DELETE)", verb)
}

func runBench(cmd *cobra.Command, global *globalOptions, opts *benchOptions, url string) error {
	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}
	thresholds, err := bench.ParseThresholds(opts.thresholds)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	p, err := parseParams(opts.params)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}
	asJSON := strings.EqualFold(global.output, "json")
	if !asJSON && !strings.EqualFold(global.output, "console") {
		return withExitCode(ExitUsageError, fmt.Errorf("unknown output format %q (want console or json)", global.output))
	}

	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	w, err := global.newClient(cfg, logger)
	if err != nil {
		return err
	}
	verb := ws.Verb(strings.ToUpper(opts.method))
	call, err := voidCall(w, verb)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	config := &bench.Config{
		Requests:    opts.requests,
		Duration:    opts.duration,
		Concurrency: opts.concurrency,
		Rate:        opts.rate,
		Thresholds:  thresholds,
	}
	if err := config.Validate(); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	reporter := bench.NewReporter(bench.WithWriter(cmd.OutOrStdout()), bench.WithNoColor(cfg.GetNoColor()))
	progress := bench.NewReporter(bench.WithWriter(cmd.ErrOrStderr()), bench.WithNoColor(cfg.GetNoColor()))

	runnerOpts := []bench.Option{bench.WithLogger(logger)}
	if !asJSON && !opts.noProgress {
		runnerOpts = append(runnerOpts, bench.WithProgress(250*time.Millisecond, progress.Progress))
	}
	target := string(verb) + " " + w.BaseURL + url
	if !asJSON {
		reporter.Header(target, config)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := bench.NewRunner(config, func(ctx context.Context) *async.Call[async.Void] {
		return call(ctx, url, p)
	}, runnerOpts...)
	summary, err := runner.Run(ctx)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	results := summary.Evaluate(thresholds)
	if asJSON {
		if err := reporter.JSONSummary(summary, results); err != nil {
			return err
		}
	} else {
		if !opts.noProgress {
			progress.ClearProgress()
		}
		reporter.Summary(summary, results)
	}

	if opts.prometheus != "" {
		if err := writePrometheusFile(opts.prometheus, summary, verb, w.BaseURL+url); err != nil {
			return err
		}
	}

	if !bench.Passed(results) {
		return &exitError{code: ExitCallFailure, err: fmt.Errorf("thresholds not met"), reported: true}
	}
	return nil
}

func writePrometheusFile(path string, s *bench.Summary, verb ws.Verb, url string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	labels := map[string]string{"method": string(verb), "url": url}
	if err := bench.WritePrometheus(f, s, labels); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
