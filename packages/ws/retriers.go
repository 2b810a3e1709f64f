package ws

import (
	"context"
	"errors"
	"math"
	"net/http"
	"slices"
	"time"

	wshttp "github.com/abdul-hamid-achik/ws/packages/http"
)

// DefaultRetryDelay is the delay between retries when none is configured
const DefaultRetryDelay = time.Second

// LimitRetrier retries failed exchanges up to MaxRetries times.
//
// Without RetryOn, network failures (no status) and the statuses 408, 429 and
// 5xx are retried. With RetryOn, only responses with one of those statuses
// are retried. The delay starts at Delay and is multiplied by Multiplier
// after each attempt, capped at MaxDelay when set.
type LimitRetrier struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	RetryOn    []int
}

// NewLimitRetrier retries up to maxRetries times with a constant delay
func NewLimitRetrier(maxRetries int, delay time.Duration) *LimitRetrier {
	return &LimitRetrier{MaxRetries: maxRetries, Delay: delay}
}

func (r *LimitRetrier) Retry(ctx context.Context, req *wshttp.Request, err error, attempt int) RetryDecision {
	if attempt > r.MaxRetries || errors.Is(err, context.Canceled) {
		return DoNotRetry
	}
	if !r.shouldRetry(err) {
		return DoNotRetry
	}
	return RetryAfter(r.delay(attempt))
}

func (r *LimitRetrier) shouldRetry(err error) bool {
	status := StatusCode(err)
	if len(r.RetryOn) > 0 {
		return slices.Contains(r.RetryOn, status)
	}
	switch {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	default:
		return status >= 500
	}
}

func (r *LimitRetrier) delay(attempt int) time.Duration {
	d := r.Delay
	if d <= 0 {
		d = DefaultRetryDelay
	}
	if r.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			next := float64(d) * r.Multiplier
			if next >= math.MaxInt64 {
				d = math.MaxInt64
				break
			}
			d = time.Duration(next)
			if r.MaxDelay > 0 && d >= r.MaxDelay {
				break
			}
		}
	}
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}
