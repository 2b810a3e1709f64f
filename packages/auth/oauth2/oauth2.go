// Package oauth2 authenticates ws calls with OAuth2 access tokens.
//
// A Provider obtains tokens from a token endpoint and caches them. A Handler
// is the request adapter and retrier of a ws client: it attaches the current
// token to every attempt and, when a call is rejected with 401, drops that
// token and retries once with a fresh one.
package oauth2

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/params"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// GrantType represents the OAuth2 grant type
type GrantType string

const (
	ClientCredentials GrantType = "client_credentials"
	// Password is the resource owner password grant
	Password     GrantType = "password"
	RefreshToken GrantType = "refresh_token"
)

// clockSkew is how long before expiry a token stops being used
const clockSkew = 30 * time.Second

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Username     string
	Password     string
	GrantType    GrantType
}

// Token represents an OAuth2 access token
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

func (t *Token) IsExpired() bool {
	return t.expiredAt(time.Now())
}

func (t *Token) expiredAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(clockSkew).After(t.ExpiresAt)
}

// AuthorizationHeader returns the Authorization header value for the token
func (t *Token) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return tokenType + " " + t.AccessToken
}

// Provider handles OAuth2 token acquisition
type Provider struct {
	config    *Config
	transport http.Transport
	cache     *TokenCache
	timeout   time.Duration

	// fetch serializes token requests so concurrent calls share one token
	fetch sync.Mutex
}

// NewProvider creates a provider requesting tokens through transport
func NewProvider(config *Config, transport http.Transport) *Provider {
	return &Provider{
		config:    config,
		transport: transport,
		cache:     NewTokenCache(),
		timeout:   30 * time.Second,
	}
}

// Token returns a valid access token, fetching a new one if necessary
func (p *Provider) Token(ctx context.Context) (*Token, error) {
	key := p.cacheKey()
	if token, ok := p.cache.Get(key); ok {
		return token, nil
	}

	p.fetch.Lock()
	defer p.fetch.Unlock()
	if token, ok := p.cache.Get(key); ok {
		return token, nil
	}

	var token *Token
	var err error
	if stale := p.cache.Stale(key); stale != nil && stale.RefreshToken != "" {
		token, err = p.Refresh(ctx, stale.RefreshToken)
	}
	if token == nil {
		token, err = p.fetchToken(ctx)
	}
	if err != nil {
		return nil, err
	}

	p.cache.Set(key, token)
	return token, nil
}

// Invalidate forgets accessToken so the next call fetches a new one
func (p *Provider) Invalidate(accessToken string) {
	p.cache.Invalidate(p.cacheKey(), accessToken)
}

func (p *Provider) cacheKey() string {
	return fmt.Sprintf("%s:%s:%s", p.config.TokenURL, p.config.ClientID, strings.Join(p.config.Scopes, ","))
}

func (p *Provider) fetchToken(ctx context.Context) (*Token, error) {
	form := params.New()
	switch p.config.GrantType {
	case Password:
		_ = form.Set("grant_type", string(Password))
		_ = form.Set("username", p.config.Username)
		_ = form.Set("password", p.config.Password)
	default:
		_ = form.Set("grant_type", string(ClientCredentials))
	}
	if len(p.config.Scopes) > 0 {
		_ = form.Set("scope", strings.Join(p.config.Scopes, " "))
	}
	return p.doTokenRequest(ctx, form)
}

// Refresh exchanges a refresh token for a new access token
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := params.New()
	_ = form.Set("grant_type", string(RefreshToken))
	_ = form.Set("refresh_token", refreshToken)
	return p.doTokenRequest(ctx, form)
}

func (p *Provider) doTokenRequest(ctx context.Context, form *params.Params) (*Token, error) {
	req := http.NewRequest("POST", p.config.TokenURL)
	req.Params = form
	req.Encoding = http.EncodingURL
	req.Timeout = p.timeout
	req.SetHeader("Accept", "application/json")
	if p.config.ClientID != "" && p.config.ClientSecret != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(p.config.ClientID + ":" + p.config.ClientSecret))
		req.SetHeader("Authorization", "Basic "+auth)
	}

	resp, err := p.transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	body, parseErr := json.Parse(resp.Body)
	if !resp.IsSuccess() {
		if parseErr == nil {
			code, _ := body.Get("error")
			desc, _ := body.Get("error_description")
			if c, ok := code.AsString(); ok && c != "" {
				d, _ := desc.AsString()
				return nil, fmt.Errorf("token request failed: %s - %s", c, d)
			}
		}
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, resp.BodyString())
	}
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", parseErr)
	}

	var token Token
	if err := body.Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}
	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	return &token, nil
}

// Handler plugs a Provider into a ws client as adapter and retrier
type Handler struct {
	provider *Provider
}

func NewHandler(p *Provider) *Handler {
	return &Handler{provider: p}
}

func (h *Handler) Adapt(ctx context.Context, req *http.Request) (*http.Request, error) {
	token, err := h.provider.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("oauth2: %w", err)
	}
	req.SetHeader("Authorization", token.AuthorizationHeader())
	return req, nil
}

// Retry drops the rejected token after a 401 and retries once
func (h *Handler) Retry(ctx context.Context, req *http.Request, err error, attempt int) ws.RetryDecision {
	if ws.StatusCode(err) != 401 || attempt > 1 {
		return ws.DoNotRetry
	}
	auth := req.Header("Authorization")
	if i := strings.IndexByte(auth, ' '); i >= 0 {
		h.provider.Invalidate(auth[i+1:])
	}
	return ws.RetryAfter(0)
}

// ParseConfig reads a compact OAuth2 description, as given on the command line.
// Format: client_credentials tokenUrl clientId clientSecret [scope1,scope2]
// Or: password tokenUrl clientId clientSecret username password [scope1,scope2]
func ParseConfig(fields []string) (*Config, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("oauth2 requires at least: grant_type tokenUrl clientId clientSecret")
	}

	config := &Config{
		GrantType:    GrantType(fields[0]),
		TokenURL:     fields[1],
		ClientID:     fields[2],
		ClientSecret: fields[3],
	}

	switch config.GrantType {
	case ClientCredentials:
		if len(fields) > 4 {
			config.Scopes = strings.Split(fields[4], ",")
		}
	case Password:
		if len(fields) < 6 {
			return nil, fmt.Errorf("oauth2 password grant requires: tokenUrl clientId clientSecret username password [scopes]")
		}
		config.Username = fields[4]
		config.Password = fields[5]
		if len(fields) > 6 {
			config.Scopes = strings.Split(fields[6], ",")
		}
	default:
		return nil, fmt.Errorf("unsupported OAuth2 grant type: %s", config.GrantType)
	}

	return config, nil
}
