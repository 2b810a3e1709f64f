// Package bench drives a ws call repeatedly, at a fixed concurrency and
// optionally a fixed rate, and summarizes latencies and failures.
package bench

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings of one benchmark run. The run ends after
// Requests calls or after Duration, whichever comes first; at least one of
// them must be set.
type Config struct {
	Requests    int
	Duration    time.Duration
	Concurrency int
	Rate        float64 // calls per second, 0 for as fast as possible
	Thresholds  Thresholds
}

// Thresholds defines pass/fail criteria for a run
type Thresholds struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	MaxLatency time.Duration
	ErrorRate  float64 // maximum failed share (0.0 - 1.0)
	MinRPS     float64
}

func DefaultConfig() *Config {
	return &Config{
		Requests:    100,
		Concurrency: 10,
	}
}

func (c *Config) Validate() error {
	if c.Requests <= 0 && c.Duration <= 0 {
		return fmt.Errorf("either requests or duration must be positive")
	}
	if c.Requests < 0 {
		return fmt.Errorf("requests cannot be negative")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	return nil
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<0.1%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}
	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}
	metric, op, value := strings.ToLower(matches[1]), matches[2], strings.TrimSpace(matches[3])

	upper := func(dst *time.Duration) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", metric, value)
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		*dst = d
		return nil
	}

	switch metric {
	case "p50":
		return upper(&t.P50)
	case "p95":
		return upper(&t.P95)
	case "p99":
		return upper(&t.P99)
	case "max", "maxlatency":
		return upper(&t.MaxLatency)

	case "errors", "error", "errorrate":
		f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid error rate: %s", value)
		}
		if strings.HasSuffix(value, "%") {
			f /= 100
		}
		if op != "<" && op != "<=" {
			return fmt.Errorf("error rate threshold must use < or <=")
		}
		t.ErrorRate = f

	case "rps", "rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RPS: %s", value)
		}
		if op != ">" && op != ">=" {
			return fmt.Errorf("RPS threshold must use > or >=")
		}
		t.MinRPS = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}
	return nil
}

// HasThresholds returns true if any thresholds are configured
func (t *Thresholds) HasThresholds() bool {
	return t.P50 > 0 || t.P95 > 0 || t.P99 > 0 || t.MaxLatency > 0 || t.ErrorRate > 0 || t.MinRPS > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string
	Passed   bool
	Expected string
	Actual   string
}
