package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter prints benchmark progress and summaries
type Reporter struct {
	writer  io.Writer
	noColor bool

	green *color.Color
	red   *color.Color
	cyan  *color.Color
	bold  *color.Color
	dim   *color.Color
}

type ReporterOption func(*Reporter)

func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.noColor {
		color.NoColor = true
	}
	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.cyan = color.New(color.FgCyan)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)
	return r
}

// Header prints what is about to run
func (r *Reporter) Header(target string, config *Config) {
	r.cyan.Fprintf(r.writer, "Benchmarking: %s\n", target)

	var details []string
	if config.Requests > 0 {
		details = append(details, fmt.Sprintf("Requests: %d", config.Requests))
	}
	if config.Duration > 0 {
		details = append(details, fmt.Sprintf("Duration: %s", config.Duration))
	}
	details = append(details, fmt.Sprintf("Concurrency: %d", config.Concurrency))
	if config.Rate > 0 {
		details = append(details, fmt.Sprintf("Target: %.0f req/s", config.Rate))
	}
	fmt.Fprintf(r.writer, "%s\n\n", strings.Join(details, " | "))
}

// Progress overwrites the current line with running totals
func (r *Reporter) Progress(s *Summary) {
	fmt.Fprint(r.writer, "\r\033[K")
	fmt.Fprintf(r.writer, "%s calls | %s failed | %.1f req/s | p95 %s",
		formatNumber(s.Total), formatNumber(s.ErrorCount), s.RPS, formatLatency(s.P95))
}

// ClearProgress erases the progress line
func (r *Reporter) ClearProgress() {
	fmt.Fprint(r.writer, "\r\033[K")
}

// Summary prints the final summary
func (r *Reporter) Summary(s *Summary, results []ThresholdResult) {
	r.bold.Fprintln(r.writer, "BENCHMARK SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(s.Duration))
	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%s", formatNumber(s.Total))
	fmt.Fprintf(r.writer, " calls (%.1f req/s)\n", s.RPS)

	fmt.Fprintf(r.writer, "Success:    ")
	r.green.Fprintf(r.writer, "%s", formatNumber(s.SuccessCount))
	fmt.Fprintf(r.writer, " (%.1f%%)\n", s.SuccessRate*100)

	fmt.Fprintf(r.writer, "Failed:     ")
	if s.ErrorCount > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(s.ErrorCount))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(s.ErrorCount))
	}
	fmt.Fprintf(r.writer, " (%.1f%%)\n", s.ErrorRate*100)

	if s.Canceled > 0 {
		fmt.Fprintf(r.writer, "Canceled:   %s\n", formatNumber(s.Canceled))
	}

	if len(s.ErrorsByKind) > 0 {
		kinds := make([]string, 0, len(s.ErrorsByKind))
		for k := range s.ErrorsByKind {
			kinds = append(kinds, k)
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			r.dim.Fprintf(r.writer, "  %-12s %s\n", k, formatNumber(s.ErrorsByKind[k]))
		}
	}
	if len(s.ErrorsByStatus) > 0 {
		statuses := make([]int, 0, len(s.ErrorsByStatus))
		for st := range s.ErrorsByStatus {
			statuses = append(statuses, st)
		}
		slices.Sort(statuses)
		for _, st := range statuses {
			r.dim.Fprintf(r.writer, "  HTTP %-7d %s\n", st, formatNumber(s.ErrorsByStatus[st]))
		}
	}

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LATENCY (ms)")
	fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
		formatLatencyMs(s.P50),
		formatLatencyMs(s.P95),
		formatLatencyMs(s.P99),
		formatLatencyMs(s.Max))
	fmt.Fprintf(r.writer, "  min: %-6s | mean: %-5s | stddev: %s\n",
		formatLatencyMs(s.Min),
		formatLatencyMs(s.Mean),
		formatLatencyMs(s.StdDev))

	if len(results) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "THRESHOLDS")
		for _, tr := range results {
			if tr.Passed {
				r.green.Fprintf(r.writer, "  ✓ ")
			} else {
				r.red.Fprintf(r.writer, "  ✗ ")
			}
			fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
		}
	}
	fmt.Fprintln(r.writer)
}

// JSONSummary outputs the summary as JSON
func (r *Reporter) JSONSummary(s *Summary, results []ThresholdResult) error {
	out := map[string]any{
		"duration": s.Duration.String(),
		"requests": map[string]any{
			"total":    s.Total,
			"success":  s.SuccessCount,
			"failed":   s.ErrorCount,
			"canceled": s.Canceled,
		},
		"rates": map[string]any{
			"rps":         s.RPS,
			"successRate": s.SuccessRate,
			"errorRate":   s.ErrorRate,
		},
		"latency": map[string]any{
			"p50":    s.P50.Milliseconds(),
			"p95":    s.P95.Milliseconds(),
			"p99":    s.P99.Milliseconds(),
			"min":    s.Min.Milliseconds(),
			"max":    s.Max.Milliseconds(),
			"mean":   s.Mean.Milliseconds(),
			"stddev": s.StdDev.Milliseconds(),
		},
	}
	if len(s.ErrorsByKind) > 0 {
		out["errorsByKind"] = s.ErrorsByKind
	}
	if len(s.ErrorsByStatus) > 0 {
		out["errorsByStatus"] = s.ErrorsByStatus
	}
	if len(results) > 0 {
		thresholds := make([]map[string]any, len(results))
		for i, tr := range results {
			thresholds[i] = map[string]any{
				"name":     tr.Name,
				"passed":   tr.Passed,
				"expected": tr.Expected,
				"actual":   tr.Actual,
			}
		}
		out["thresholds"] = thresholds
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

// formatNumber formats a number with thousands separators
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 1000 && n > -1000 {
		return s
	}
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}

	result := make([]byte, 0, len(s)+(len(s)-1)/3)
	start := len(s) % 3
	if start == 0 {
		start = 3
	}
	result = append(result, s[:start]...)
	for i := start; i < len(s); i += 3 {
		result = append(result, ',')
		result = append(result, s[i:i+3]...)
	}
	return sign + string(result)
}
