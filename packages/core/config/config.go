package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/ws/packages/core/env"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Config represents the ws client configuration
type Config struct {
	BaseURL           string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	CollectionKeyPath string            `json:"collectionKeyPath,omitempty" yaml:"collectionKeyPath,omitempty"`
	LogLevel          string            `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	Encoding          string            `json:"encoding,omitempty" yaml:"encoding,omitempty"`

	Timeout         int    `json:"timeout,omitempty" yaml:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool  `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty"`
	MaxRedirects    int    `json:"maxRedirects,omitempty" yaml:"maxRedirects,omitempty"`
	ValidateSSL     *bool  `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty"`
	Proxy           string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	Retries      int     `json:"retries,omitempty" yaml:"retries,omitempty"`
	RetryDelay   int     `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"` // milliseconds
	RetryBackoff float64 `json:"retryBackoff,omitempty" yaml:"retryBackoff,omitempty"`
	RetryOn      []int   `json:"retryOn,omitempty" yaml:"retryOn,omitempty"`

	RateLimit float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"` // requests per second
	RateBurst int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`

	// Breaker opens the circuit after this many consecutive failures; 0 disables it
	Breaker        int `json:"breaker,omitempty" yaml:"breaker,omitempty"`
	BreakerTimeout int `json:"breakerTimeout,omitempty" yaml:"breakerTimeout,omitempty"` // milliseconds

	RequestID            *bool `json:"requestID,omitempty" yaml:"requestID,omitempty"`
	ShowsNetworkActivity *bool `json:"showsNetworkActivity,omitempty" yaml:"showsNetworkActivity,omitempty"`
	NoColor              *bool `json:"noColor,omitempty" yaml:"noColor,omitempty"`

	// EnvFile is read for ${VAR} expansion, relative to the config file
	EnvFile string `json:"envFile,omitempty" yaml:"envFile,omitempty"`

	// History is the SQLite file the CLI records calls in; empty disables it
	History string `json:"history,omitempty" yaml:"history,omitempty"`
}

// BoolPtr returns a pointer to b, for the optional boolean settings
func BoolPtr(b bool) *bool {
	return &b
}

func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

func (c *Config) GetRequestID() bool {
	return getBool(c.RequestID, false)
}

func (c *Config) GetShowsNetworkActivity() bool {
	return getBool(c.ShowsNetworkActivity, true)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	".ws.json",
	"ws.json",
	".ws.yaml",
	".ws.yml",
}

// LoadConfig loads configuration from path, or searches the current
// directory when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	return DefaultConfig(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, filepath.Base(path), err)
	}

	if err := config.expand(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if config.History != "" && !filepath.IsAbs(config.History) {
		config.History = filepath.Join(filepath.Dir(path), config.History)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// expand resolves ${VAR} references in string settings
func (c *Config) expand(dir string) error {
	lookup := env.Lookup{}
	envFile := c.EnvFile
	if envFile == "" {
		if _, err := os.Stat(filepath.Join(dir, ".env")); err == nil {
			envFile = ".env"
		}
	}
	if envFile != "" {
		if !filepath.IsAbs(envFile) {
			envFile = filepath.Join(dir, envFile)
		}
		vars, err := env.LoadDotEnv(envFile)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		lookup.Vars = vars
	}

	var missing []string
	resolve := func(s string) string {
		out, m := lookup.Expand(s)
		missing = append(missing, m...)
		return out
	}

	c.BaseURL = resolve(c.BaseURL)
	c.Proxy = resolve(c.Proxy)
	c.History = resolve(c.History)
	for k, v := range c.Headers {
		c.Headers[k] = resolve(v)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: undefined variables: %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c
	result.Headers = make(map[string]string, len(c.Headers)+len(other.Headers))
	for k, v := range c.Headers {
		result.Headers[k] = v
	}
	for k, v := range other.Headers {
		result.Headers[k] = v
	}

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.CollectionKeyPath != "" {
		result.CollectionKeyPath = other.CollectionKeyPath
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}
	if other.Encoding != "" {
		result.Encoding = other.Encoding
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Retries > 0 {
		result.Retries = other.Retries
	}
	if other.RetryDelay > 0 {
		result.RetryDelay = other.RetryDelay
	}
	if other.RetryBackoff > 0 {
		result.RetryBackoff = other.RetryBackoff
	}
	if len(other.RetryOn) > 0 {
		result.RetryOn = other.RetryOn
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.RateBurst > 0 {
		result.RateBurst = other.RateBurst
	}
	if other.Breaker > 0 {
		result.Breaker = other.Breaker
	}
	if other.BreakerTimeout > 0 {
		result.BreakerTimeout = other.BreakerTimeout
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.History != "" {
		result.History = other.History
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.RequestID != nil {
		result.RequestID = other.RequestID
	}
	if other.ShowsNetworkActivity != nil {
		result.ShowsNetworkActivity = other.ShowsNetworkActivity
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	return &result
}

// SaveConfig writes the configuration as YAML or JSON, by file extension
func (c *Config) SaveConfig(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
