package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit open")

var errServerStatus = errors.New("server error status")

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// Name identifies the breaker in logs.
	Name string `yaml:"name" json:"name,omitempty"`
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures" json:"maxFailures,omitempty"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval" json:"interval,omitempty"`
}

// BreakerTransport wraps a Transport with circuit breaker protection.
// Network errors and 5xx responses count as failures. While the circuit is
// open, calls fail fast with ErrCircuitOpen without reaching the network.
type BreakerTransport struct {
	next    Transport
	breaker *gobreaker.CircuitBreaker[*Response]
}

func NewBreakerTransport(next Transport, cfg BreakerConfig, logger *zap.Logger) *BreakerTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}
	name := cfg.Name
	if name == "" {
		name = "ws"
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerTransport{next: next, breaker: cb}
}

func (b *BreakerTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, err := b.breaker.Execute(func() (*Response, error) {
		resp, err := b.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.IsServerError() {
			return resp, errServerStatus
		}
		return resp, nil
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errServerStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	default:
		return nil, err
	}
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerTransport) State() gobreaker.State {
	return b.breaker.State()
}

var _ Transport = (*BreakerTransport)(nil)
var _ Transport = (*Client)(nil)
