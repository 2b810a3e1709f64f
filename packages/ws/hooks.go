package ws

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
)

// Adapter rewrites an outgoing request before it is dispatched. It receives
// a private copy it may modify and return. An error aborts the call with
// KindAdaptation.
type Adapter interface {
	Adapt(ctx context.Context, req *http.Request) (*http.Request, error)
}

// AdapterFunc adapts a function to Adapter
type AdapterFunc func(ctx context.Context, req *http.Request) (*http.Request, error)

func (f AdapterFunc) Adapt(ctx context.Context, req *http.Request) (*http.Request, error) {
	return f(ctx, req)
}

// RetryDecision is a Retrier's verdict on a failed exchange
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// DoNotRetry gives up on the call
var DoNotRetry = RetryDecision{}

// RetryAfter retries once delay has elapsed
func RetryAfter(delay time.Duration) RetryDecision {
	return RetryDecision{Retry: true, Delay: delay}
}

// Retrier decides whether a failed exchange is attempted again. attempt is
// 1 for the first exchange. The Retrier owns the retry budget: a call retries
// for as long as its Retrier says so.
type Retrier interface {
	Retry(ctx context.Context, req *http.Request, err error, attempt int) RetryDecision
}

// RetrierFunc adapts a function to Retrier
type RetrierFunc func(ctx context.Context, req *http.Request, err error, attempt int) RetryDecision

func (f RetrierFunc) Retry(ctx context.Context, req *http.Request, err error, attempt int) RetryDecision {
	return f(ctx, req, err, attempt)
}

// ErrorHandler inspects a parsed body for an application-level error. A
// non-nil result fails the call with KindApplication.
type ErrorHandler func(body json.JSON) error

// ChainAdapters applies adapters in order. Nil entries are skipped.
func ChainAdapters(adapters ...Adapter) Adapter {
	return AdapterFunc(func(ctx context.Context, req *http.Request) (*http.Request, error) {
		for _, a := range adapters {
			if a == nil {
				continue
			}
			adapted, err := a.Adapt(ctx, req)
			if err != nil {
				return nil, err
			}
			if adapted != nil {
				req = adapted
			}
		}
		return req, nil
	})
}

// ChainRetriers asks each retrier in turn and follows the first one that
// decides to retry.
func ChainRetriers(retriers ...Retrier) Retrier {
	return RetrierFunc(func(ctx context.Context, req *http.Request, err error, attempt int) RetryDecision {
		for _, r := range retriers {
			if r == nil {
				continue
			}
			if d := r.Retry(ctx, req, err, attempt); d.Retry {
				return d
			}
		}
		return DoNotRetry
	})
}
