package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:       "off",
		Encoding:       "url",
		Timeout:        30000, // 30 seconds
		MaxRedirects:   10,
		RetryDelay:     1000,
		RateBurst:      1,
		BreakerTimeout: 30000,
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.BaseURL == d.BaseURL &&
		len(c.Headers) == 0 &&
		c.CollectionKeyPath == d.CollectionKeyPath &&
		c.LogLevel == d.LogLevel &&
		c.Encoding == d.Encoding &&
		c.Timeout == d.Timeout &&
		c.FollowRedirects == nil &&
		c.MaxRedirects == d.MaxRedirects &&
		c.ValidateSSL == nil &&
		c.Proxy == d.Proxy &&
		c.Retries == d.Retries &&
		c.RetryDelay == d.RetryDelay &&
		c.RetryBackoff == d.RetryBackoff &&
		len(c.RetryOn) == 0 &&
		c.RateLimit == d.RateLimit &&
		c.RateBurst == d.RateBurst &&
		c.Breaker == d.Breaker &&
		c.BreakerTimeout == d.BreakerTimeout &&
		c.RequestID == nil &&
		c.ShowsNetworkActivity == nil &&
		c.NoColor == nil &&
		c.EnvFile == d.EnvFile &&
		c.History == d.History
}
