package bench

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// latency range of the histogram, in microseconds
const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics collects the outcome of every call of a run
type Metrics struct {
	mu sync.Mutex

	total    atomic.Int64
	success  atomic.Int64
	failed   atomic.Int64
	canceled atomic.Int64

	histogram *hdrhistogram.Histogram
	byKind    map[string]int64
	byStatus  map[int]int64

	startTime time.Time
	endTime   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		// 1us to 60s, 3 significant digits
		histogram: hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		byKind:    make(map[string]int64),
		byStatus:  make(map[int]int64),
	}
}

func (m *Metrics) Start() {
	m.startTime = time.Now()
}

func (m *Metrics) Stop() {
	m.endTime = time.Now()
}

// Record adds one finished call. Cancelled calls are counted apart and do
// not contribute a latency.
func (m *Metrics) Record(duration time.Duration, err error) {
	if errors.Is(err, async.ErrCanceled) {
		m.canceled.Add(1)
		return
	}

	m.total.Add(1)
	if err == nil {
		m.success.Add(1)
	} else {
		m.failed.Add(1)
	}

	latencyUs := min(max(duration.Microseconds(), minLatencyUs), maxLatencyUs)

	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.histogram.RecordValue(latencyUs)
	if err != nil {
		m.byKind[ws.KindOf(err).String()]++
		if status := ws.StatusCode(err); status != 0 {
			m.byStatus[status]++
		}
	}
}

// Summary is the final report of a run
type Summary struct {
	Duration     time.Duration
	Total        int64
	SuccessCount int64
	ErrorCount   int64
	Canceled     int64

	RPS         float64
	SuccessRate float64
	ErrorRate   float64

	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
	Mean   time.Duration
	StdDev time.Duration

	// ErrorsByKind counts failures per ws error kind
	ErrorsByKind map[string]int64
	// ErrorsByStatus counts failures per HTTP status, when one was received
	ErrorsByStatus map[int]int64
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func (m *Metrics) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	s := &Summary{
		Duration:       duration,
		Total:          m.total.Load(),
		SuccessCount:   m.success.Load(),
		ErrorCount:     m.failed.Load(),
		Canceled:       m.canceled.Load(),
		ErrorsByKind:   make(map[string]int64, len(m.byKind)),
		ErrorsByStatus: make(map[int]int64, len(m.byStatus)),
	}
	if duration > 0 {
		s.RPS = float64(s.Total) / duration.Seconds()
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.Total)
		s.ErrorRate = float64(s.ErrorCount) / float64(s.Total)

		s.P50 = micros(m.histogram.ValueAtQuantile(50))
		s.P95 = micros(m.histogram.ValueAtQuantile(95))
		s.P99 = micros(m.histogram.ValueAtQuantile(99))
		s.Min = micros(m.histogram.Min())
		s.Max = micros(m.histogram.Max())
		s.Mean = micros(int64(m.histogram.Mean()))
		s.StdDev = micros(int64(m.histogram.StdDev()))
	}
	for k, v := range m.byKind {
		s.ErrorsByKind[k] = v
	}
	for k, v := range m.byStatus {
		s.ErrorsByStatus[k] = v
	}
	return s
}

// Evaluate checks the summary against t
func (s *Summary) Evaluate(t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit > 0 {
			results = append(results, ThresholdResult{
				Name:     name,
				Passed:   actual <= limit,
				Expected: "< " + limit.String(),
				Actual:   actual.String(),
			})
		}
	}
	latency("p50", t.P50, s.P50)
	latency("p95", t.P95, s.P95)
	latency("p99", t.P99, s.P99)
	latency("max latency", t.MaxLatency, s.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "error rate",
			Passed:   s.ErrorRate <= t.ErrorRate,
			Expected: formatPercent(t.ErrorRate),
			Actual:   formatPercent(s.ErrorRate),
		})
	}
	if t.MinRPS > 0 {
		results = append(results, ThresholdResult{
			Name:     "min RPS",
			Passed:   s.RPS >= t.MinRPS,
			Expected: "> " + formatFloat(t.MinRPS),
			Actual:   formatFloat(s.RPS),
		})
	}
	return results
}

// Passed reports whether every result passed
func Passed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func formatPercent(f float64) string {
	return formatFloat(f*100) + "%"
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}
