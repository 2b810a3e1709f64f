package bench

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WritePrometheus writes s in the Prometheus text exposition format, so that
// a bench run can be picked up by a node exporter textfile collector. Every
// sample carries labels, for example the method and URL of the benched call.
func WritePrometheus(w io.Writer, s *Summary, labels map[string]string) error {
	pw := &promWriter{w: w, base: formatLabels(labels)}

	pw.metric("ws_bench_calls_total", "counter", "Calls issued by the bench run")
	pw.sample("ws_bench_calls_total", "", float64(s.Total))

	pw.metric("ws_bench_calls_succeeded_total", "counter", "Calls that delivered a result")
	pw.sample("ws_bench_calls_succeeded_total", "", float64(s.SuccessCount))

	pw.metric("ws_bench_calls_failed_total", "counter", "Calls that delivered an error")
	pw.sample("ws_bench_calls_failed_total", "", float64(s.ErrorCount))

	pw.metric("ws_bench_calls_canceled_total", "counter", "Calls canceled when the run ended")
	pw.sample("ws_bench_calls_canceled_total", "", float64(s.Canceled))

	pw.metric("ws_bench_calls_per_second", "gauge", "Completed calls per second")
	pw.sample("ws_bench_calls_per_second", "", s.RPS)

	pw.metric("ws_bench_call_duration_seconds", "summary", "Call latency")
	for _, q := range []struct {
		label string
		value float64
	}{
		{"0.5", s.P50.Seconds()},
		{"0.95", s.P95.Seconds()},
		{"0.99", s.P99.Seconds()},
		{"1", s.Max.Seconds()},
	} {
		pw.sample("ws_bench_call_duration_seconds", `quantile="`+q.label+`"`, q.value)
	}

	if len(s.ErrorsByKind) > 0 {
		pw.metric("ws_bench_errors_by_kind_total", "counter", "Failed calls per error kind")
		kinds := make([]string, 0, len(s.ErrorsByKind))
		for k := range s.ErrorsByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			pw.sample("ws_bench_errors_by_kind_total", `kind="`+escapeLabel(k)+`"`, float64(s.ErrorsByKind[k]))
		}
	}

	if len(s.ErrorsByStatus) > 0 {
		pw.metric("ws_bench_errors_by_status_total", "counter", "Failed calls per HTTP status")
		codes := make([]int, 0, len(s.ErrorsByStatus))
		for c := range s.ErrorsByStatus {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		for _, c := range codes {
			pw.sample("ws_bench_errors_by_status_total", fmt.Sprintf(`status="%d"`, c), float64(s.ErrorsByStatus[c]))
		}
	}

	return pw.err
}

type promWriter struct {
	w    io.Writer
	base string
	err  error
}

func (p *promWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *promWriter) metric(name, typ, help string) {
	p.printf("# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

func (p *promWriter) sample(name, extra string, value float64) {
	labels := p.base
	switch {
	case labels == "":
		labels = extra
	case extra != "":
		labels += "," + extra
	}
	if labels != "" {
		p.printf("%s{%s} %g\n", name, labels, value)
		return
	}
	p.printf("%s %g\n", name, value)
}

func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+`="`+escapeLabel(labels[k])+`"`)
	}
	return strings.Join(parts, ",")
}

// escapeLabel makes a string safe for use as a label value
func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}
