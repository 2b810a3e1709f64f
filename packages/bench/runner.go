package bench

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/ws/packages/async"
)

// CallFunc starts one call of the benchmarked operation
type CallFunc func(ctx context.Context) *async.Call[async.Void]

// Runner issues calls from Concurrency workers until the request budget or
// the duration is used up.
type Runner struct {
	config   *Config
	call     CallFunc
	metrics  *Metrics
	limiter  *rate.Limiter
	logger   *zap.Logger
	progress func(*Summary)
	interval time.Duration
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithProgress calls fn with a running summary every interval
func WithProgress(interval time.Duration, fn func(*Summary)) Option {
	return func(r *Runner) {
		r.interval = interval
		r.progress = fn
	}
}

func NewRunner(config *Config, call CallFunc, opts ...Option) *Runner {
	r := &Runner{
		config:  config,
		call:    call,
		metrics: NewMetrics(),
		logger:  zap.NewNop(),
	}
	if config.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(config.Rate), 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until the run is over. Calls still in flight when the duration
// ends or ctx is cancelled are cancelled and counted as canceled.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	issueCtx := ctx
	if r.config.Duration > 0 {
		var cancel context.CancelFunc
		issueCtx, cancel = context.WithTimeout(ctx, r.config.Duration)
		defer cancel()
	}

	var issued atomic.Int64
	next := func() bool {
		if r.config.Requests > 0 && issued.Add(1) > int64(r.config.Requests) {
			return false
		}
		if r.limiter != nil && r.limiter.Wait(issueCtx) != nil {
			return false
		}
		return issueCtx.Err() == nil
	}

	r.logger.Info("bench starting",
		zap.Int("requests", r.config.Requests),
		zap.Duration("duration", r.config.Duration),
		zap.Int("concurrency", r.config.Concurrency),
		zap.Float64("rate", r.config.Rate),
	)
	r.metrics.Start()

	stopProgress := r.startProgress()

	var wg sync.WaitGroup
	for i := 0; i < r.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for next() {
				r.once(issueCtx)
			}
		}()
	}
	wg.Wait()

	stopProgress()
	r.metrics.Stop()

	summary := r.metrics.Summary()
	r.logger.Info("bench finished",
		zap.Int64("total", summary.Total),
		zap.Int64("failed", summary.ErrorCount),
		zap.Duration("p95", summary.P95),
	)
	return summary, nil
}

func (r *Runner) once(ctx context.Context) {
	start := time.Now()
	c := r.call(ctx)
	_, err := c.Await(ctx)
	if ctx.Err() != nil {
		// calls ending with the run are not measured
		c.Cancel()
		err = async.ErrCanceled
	}
	r.metrics.Record(time.Since(start), err)
}

func (r *Runner) startProgress() func() {
	if r.progress == nil || r.interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.progress(r.metrics.Summary())
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
