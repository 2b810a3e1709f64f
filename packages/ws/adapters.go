package ws

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/ws/packages/http"
)

// DefaultRequestIDHeader is the header set by RequestIDAdapter
const DefaultRequestIDHeader = "X-Request-ID"

// StaticHeaders sets fixed headers on every request, replacing existing values
func StaticHeaders(headers map[string]string) Adapter {
	return AdapterFunc(func(ctx context.Context, req *http.Request) (*http.Request, error) {
		for k, v := range headers {
			req.SetHeader(k, v)
		}
		return req, nil
	})
}

// BearerToken sets an Authorization header from a token source
func BearerToken(token func(ctx context.Context) (string, error)) Adapter {
	return AdapterFunc(func(ctx context.Context, req *http.Request) (*http.Request, error) {
		t, err := token(ctx)
		if err != nil {
			return nil, fmt.Errorf("bearer token: %w", err)
		}
		req.SetHeader("Authorization", "Bearer "+t)
		return req, nil
	})
}

// RequestIDAdapter tags every attempt with a fresh UUID under header, unless
// the request already carries one. An empty header uses DefaultRequestIDHeader.
func RequestIDAdapter(header string) Adapter {
	if header == "" {
		header = DefaultRequestIDHeader
	}
	return AdapterFunc(func(ctx context.Context, req *http.Request) (*http.Request, error) {
		if req.Header(header) == "" {
			req.SetHeader(header, uuid.NewString())
		}
		return req, nil
	})
}

// RateLimitAdapter delays dispatch until limiter grants a token. The wait
// honors the call's context; a cancelled wait fails the call as an
// adaptation error.
func RateLimitAdapter(limiter *rate.Limiter) Adapter {
	return AdapterFunc(func(ctx context.Context, req *http.Request) (*http.Request, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		return req, nil
	})
}

// NewRateLimitAdapter allows rps requests per second with the given burst
func NewRateLimitAdapter(rps float64, burst int) Adapter {
	if burst < 1 {
		burst = 1
	}
	return RateLimitAdapter(rate.NewLimiter(rate.Limit(rps), burst))
}
