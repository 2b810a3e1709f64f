package bench

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/mock"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"duration only", &Config{Duration: time.Second, Concurrency: 1}, false},
		{"no budget", &Config{Concurrency: 1}, true},
		{"no workers", &Config{Requests: 10}, true},
		{"negative rate", &Config{Requests: 10, Concurrency: 1, Rate: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseThresholds(t *testing.T) {
	th, err := ParseThresholds("p95<200ms, p99<=1s,errors<0.5%,rps>50")
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, th.P95)
	assert.Equal(t, time.Second, th.P99)
	assert.InDelta(t, 0.005, th.ErrorRate, 1e-9)
	assert.Equal(t, float64(50), th.MinRPS)
	assert.True(t, th.HasThresholds())

	empty, err := ParseThresholds("")
	require.NoError(t, err)
	assert.False(t, empty.HasThresholds())

	for _, bad := range []string{"p95>200ms", "rps<10", "latency<1s", "p50<fast", "nonsense"} {
		_, err := ParseThresholds(bad)
		assert.Error(t, err, bad)
	}
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.Record(100*time.Millisecond, nil)
	m.Record(150*time.Millisecond, nil)
	m.Record(50*time.Millisecond, &ws.Error{Kind: ws.KindTransport, StatusCode: 503})
	m.Record(10*time.Millisecond, &ws.Error{Kind: ws.KindParsing, StatusCode: 200})
	m.Record(time.Millisecond, async.ErrCanceled)

	m.Stop()

	s := m.Summary()
	assert.Equal(t, int64(4), s.Total)
	assert.Equal(t, int64(2), s.SuccessCount)
	assert.Equal(t, int64(2), s.ErrorCount)
	assert.Equal(t, int64(1), s.Canceled)
	assert.Equal(t, 0.5, s.ErrorRate)
	assert.Equal(t, map[string]int64{"transport": 1, "parsing": 1}, s.ErrorsByKind)
	assert.Equal(t, map[int]int64{503: 1, 200: 1}, s.ErrorsByStatus)
	assert.InDelta(t, float64(150*time.Millisecond), float64(s.Max), float64(time.Millisecond))
	assert.InDelta(t, float64(10*time.Millisecond), float64(s.Min), float64(time.Millisecond))
}

func TestSummaryEvaluate(t *testing.T) {
	s := &Summary{P95: 150 * time.Millisecond, P99: 400 * time.Millisecond, ErrorRate: 0.02, RPS: 80}
	results := s.Evaluate(Thresholds{P95: 200 * time.Millisecond, P99: 300 * time.Millisecond, ErrorRate: 0.05, MinRPS: 100})

	require.Len(t, results, 4)
	passed := map[string]bool{}
	for _, r := range results {
		passed[r.Name] = r.Passed
	}
	assert.True(t, passed["p95"])
	assert.False(t, passed["p99"])
	assert.True(t, passed["error rate"])
	assert.False(t, passed["min RPS"])
	assert.False(t, Passed(results))
	assert.True(t, Passed(nil))
}

func TestRunnerRequestBudget(t *testing.T) {
	var calls atomic.Int64
	call := func(ctx context.Context) *async.Call[async.Void] {
		n := calls.Add(1)
		if n%4 == 0 {
			return async.Failed[async.Void](&ws.Error{Kind: ws.KindTransport, StatusCode: 500})
		}
		return async.Resolved(async.Void{})
	}

	summary, err := NewRunner(&Config{Requests: 40, Concurrency: 4}, call).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(40), calls.Load())
	assert.Equal(t, int64(40), summary.Total)
	assert.Equal(t, int64(10), summary.ErrorCount)
	assert.Equal(t, int64(10), summary.ErrorsByStatus[500])
}

func TestRunnerDuration(t *testing.T) {
	call := func(ctx context.Context) *async.Call[async.Void] {
		return async.Go(ctx, func(ctx context.Context) (async.Void, error) {
			time.Sleep(5 * time.Millisecond)
			return async.Void{}, nil
		})
	}

	start := time.Now()
	summary, err := NewRunner(&Config{Duration: 100 * time.Millisecond, Concurrency: 2}, call).Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Greater(t, summary.Total, int64(0))
	assert.Zero(t, summary.ErrorCount)
}

func TestRunnerCancelStopsInFlightCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, 1)
	call := func(ctx context.Context) *async.Call[async.Void] {
		select {
		case started <- struct{}{}:
		default:
		}
		return async.Go(ctx, func(ctx context.Context) (async.Void, error) {
			<-ctx.Done()
			return async.Void{}, ctx.Err()
		})
	}

	go func() {
		<-started
		cancel()
	}()

	summary, err := NewRunner(&Config{Requests: 5, Concurrency: 1}, call).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Canceled)
	assert.Zero(t, summary.Total)
}

func TestRunnerDurationCancelsInFlightCalls(t *testing.T) {
	call := func(ctx context.Context) *async.Call[async.Void] {
		return async.Go(ctx, func(ctx context.Context) (async.Void, error) {
			<-ctx.Done()
			return async.Void{}, ctx.Err()
		})
	}

	start := time.Now()
	summary, err := NewRunner(&Config{Duration: 30 * time.Millisecond, Concurrency: 2}, call).Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(2), summary.Canceled)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.ErrorCount)
}

func TestRunnerRate(t *testing.T) {
	var calls atomic.Int64
	call := func(ctx context.Context) *async.Call[async.Void] {
		calls.Add(1)
		return async.Resolved(async.Void{})
	}

	start := time.Now()
	_, err := NewRunner(&Config{Requests: 5, Concurrency: 5, Rate: 50}, call).Run(context.Background())
	require.NoError(t, err)

	// the first call is free, the next four wait 20ms each
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Equal(t, int64(5), calls.Load())
}

func TestRunnerProgress(t *testing.T) {
	call := func(ctx context.Context) *async.Call[async.Void] {
		return async.Go(ctx, func(ctx context.Context) (async.Void, error) {
			time.Sleep(2 * time.Millisecond)
			return async.Void{}, nil
		})
	}

	var reports atomic.Int64
	runner := NewRunner(&Config{Duration: 50 * time.Millisecond, Concurrency: 1}, call,
		WithProgress(5*time.Millisecond, func(*Summary) { reports.Add(1) }))
	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, reports.Load(), int64(0))
}

func TestRunnerInvalidConfig(t *testing.T) {
	_, err := NewRunner(&Config{}, nil).Run(context.Background())
	assert.Error(t, err)
}

func TestRunnerAgainstMockServer(t *testing.T) {
	server := mock.NewServer()
	route := server.JSON("GET", "/health", 200, `{"status": "ok"}`)
	route.FailFirst(3, mock.Response{StatusCode: 503})
	srv := httptest.NewServer(server)
	defer srv.Close()

	client := ws.New(srv.URL)
	call := func(ctx context.Context) *async.Call[async.Void] {
		return client.GetVoid(ctx, "/health", nil)
	}

	summary, err := NewRunner(&Config{Requests: 20, Concurrency: 1}, call).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 20, route.Hits())
	assert.Equal(t, int64(3), summary.ErrorCount)
	assert.Equal(t, int64(3), summary.ErrorsByStatus[503])
	assert.Equal(t, int64(3), summary.ErrorsByKind["transport"])
}

func TestReporterSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	s := &Summary{
		Duration:       2 * time.Second,
		Total:          1200,
		SuccessCount:   1199,
		ErrorCount:     1,
		ErrorsByKind:   map[string]int64{"transport": 1},
		ErrorsByStatus: map[int]int64{502: 1},
		P95:            12 * time.Millisecond,
	}
	r.Header("GET http://localhost/health", &Config{Requests: 1200, Concurrency: 8})
	r.Summary(s, []ThresholdResult{{Name: "p95", Passed: true, Expected: "< 20ms", Actual: "12ms"}})

	out := buf.String()
	assert.Contains(t, out, "Benchmarking: GET http://localhost/health")
	assert.Contains(t, out, "Requests: 1200 | Concurrency: 8")
	assert.Contains(t, out, "1,200 calls")
	assert.Contains(t, out, "transport")
	assert.Contains(t, out, "HTTP 502")
	assert.Contains(t, out, "✓ p95 < 20ms")
}

func TestReporterJSONSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf))

	err := r.JSONSummary(&Summary{Total: 3, SuccessCount: 3}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"total": 3`)
	assert.NotContains(t, buf.String(), "thresholds")
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,000", formatNumber(-12000))
}

func TestWritePrometheus(t *testing.T) {
	s := &Summary{
		Total:          10,
		SuccessCount:   8,
		ErrorCount:     2,
		RPS:            5,
		P50:            20 * time.Millisecond,
		P95:            40 * time.Millisecond,
		P99:            50 * time.Millisecond,
		Max:            60 * time.Millisecond,
		ErrorsByKind:   map[string]int64{"status": 2},
		ErrorsByStatus: map[int]int64{503: 2},
	}

	var buf bytes.Buffer
	err := WritePrometheus(&buf, s, map[string]string{"method": "GET", "url": `/a"b`})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "# TYPE ws_bench_calls_total counter\n")
	assert.Contains(t, out, `ws_bench_calls_total{method="GET",url="/a\"b"} 10`)
	assert.Contains(t, out, `ws_bench_call_duration_seconds{method="GET",url="/a\"b",quantile="0.95"} 0.04`)
	assert.Contains(t, out, `ws_bench_errors_by_status_total{method="GET",url="/a\"b",status="503"} 2`)
	assert.Contains(t, out, `ws_bench_errors_by_kind_total{method="GET",url="/a\"b",kind="status"} 2`)
}

func TestWritePrometheus_NoLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf, &Summary{Total: 3}, nil))
	assert.Contains(t, buf.String(), "ws_bench_calls_total 3\n")
	assert.NotContains(t, buf.String(), "errors_by_kind")
}
