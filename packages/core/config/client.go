package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// Validate checks enumerated and numeric settings
func (c *Config) Validate() error {
	if _, ok := ws.ParseLogLevel(c.LogLevel); !ok {
		return fmt.Errorf("%w: unknown logLevel %q (want off, calls or responses)", ErrInvalidConfig, c.LogLevel)
	}
	if _, ok := http.ParseEncoding(c.Encoding); !ok {
		return fmt.Errorf("%w: unknown encoding %q (want url or json)", ErrInvalidConfig, c.Encoding)
	}
	if c.BaseURL != "" {
		if err := http.ValidateURL(c.BaseURL); err != nil {
			return fmt.Errorf("%w: baseURL: %v", ErrInvalidConfig, err)
		}
	}
	for name, v := range map[string]int{
		"timeout":        c.Timeout,
		"maxRedirects":   c.MaxRedirects,
		"retries":        c.Retries,
		"retryDelay":     c.RetryDelay,
		"rateBurst":      c.RateBurst,
		"breaker":        c.Breaker,
		"breakerTimeout": c.BreakerTimeout,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rateLimit must not be negative", ErrInvalidConfig)
	}
	for _, status := range c.RetryOn {
		if status < 100 || status > 599 {
			return fmt.Errorf("%w: retryOn status %d out of range", ErrInvalidConfig, status)
		}
	}
	return nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ClientOptions translates the transport settings into http client options
func (c *Config) ClientOptions(logger *zap.Logger) []http.ClientOption {
	opts := []http.ClientOption{
		http.WithFollowRedirects(c.GetFollowRedirects()),
		http.WithValidateSSL(c.GetValidateSSL()),
		http.WithLogger(logger),
	}
	if c.Timeout > 0 {
		opts = append(opts, http.WithTimeout(millis(c.Timeout)))
	}
	if c.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(c.MaxRedirects))
	}
	if c.Proxy != "" {
		opts = append(opts, http.WithProxy(c.Proxy))
	}
	return opts
}

// Transport builds the http client, behind a circuit breaker when one is
// configured.
func (c *Config) Transport(logger *zap.Logger) http.Transport {
	var transport http.Transport = http.NewClient(c.ClientOptions(logger)...)
	if c.Breaker > 0 {
		transport = http.NewBreakerTransport(transport, http.BreakerConfig{
			Name:        "ws",
			MaxFailures: uint32(c.Breaker),
			Timeout:     millis(c.BreakerTimeout),
		}, logger)
	}
	return transport
}

// Retrier returns the configured retry policy, or nil without retries
func (c *Config) Retrier() ws.Retrier {
	if c.Retries <= 0 {
		return nil
	}
	return &ws.LimitRetrier{
		MaxRetries: c.Retries,
		Delay:      millis(c.RetryDelay),
		Multiplier: c.RetryBackoff,
		RetryOn:    c.RetryOn,
	}
}

// Adapter returns the configured adapters chained, or nil when none is set
func (c *Config) Adapter() ws.Adapter {
	var adapters []ws.Adapter
	if c.RateLimit > 0 {
		adapters = append(adapters, ws.NewRateLimitAdapter(c.RateLimit, c.RateBurst))
	}
	if c.GetRequestID() {
		adapters = append(adapters, ws.RequestIDAdapter(""))
	}
	switch len(adapters) {
	case 0:
		return nil
	case 1:
		return adapters[0]
	default:
		return ws.ChainAdapters(adapters...)
	}
}

// Apply copies the client-level defaults onto w. Settings already present
// on w, such as its transport, are replaced only when configured here.
func (c *Config) Apply(w *ws.WS) error {
	if err := c.Validate(); err != nil {
		return err
	}
	level, _ := ws.ParseLogLevel(c.LogLevel)
	encoding, _ := http.ParseEncoding(c.Encoding)

	if c.BaseURL != "" {
		w.BaseURL = c.BaseURL
	}
	for k, v := range c.Headers {
		w.Headers[k] = v
	}
	if c.CollectionKeyPath != "" {
		w.DefaultCollectionKeyPath = c.CollectionKeyPath
	}
	w.LogLevel = level
	w.PostParameterEncoding = encoding
	w.ShowsNetworkActivity = c.GetShowsNetworkActivity()
	if a := c.Adapter(); a != nil {
		w.RequestAdapter = ws.ChainAdapters(w.RequestAdapter, a)
	}
	if r := c.Retrier(); r != nil {
		w.RequestRetrier = r
	}
	return nil
}

// NewClient builds a ws client from the configuration. opts are applied
// after the configuration and win over it.
func (c *Config) NewClient(logger *zap.Logger, opts ...ws.Option) (*ws.WS, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := ws.New(c.BaseURL, ws.WithLogger(logger), ws.WithTransport(c.Transport(logger)))
	if err := c.Apply(w); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}
