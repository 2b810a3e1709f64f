package oauth2

import (
	"sync"
	"time"
)

// TokenCache holds tokens per provider, safe for concurrent use
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*Token
	now    func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
}

// Get returns the token under key if it is still usable
func (c *TokenCache) Get(key string) (*Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.tokens[key]
	if !ok || token.expiredAt(c.now()) {
		return nil, false
	}
	return token, true
}

// Stale returns the token under key even when expired, for refreshing
func (c *TokenCache) Stale(key string) *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[key]
}

func (c *TokenCache) Set(key string, token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
}

// Invalidate drops the token under key if it is still the given access token
func (c *TokenCache) Invalidate(key, accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tokens[key]; ok && (accessToken == "" || t.AccessToken == accessToken) {
		delete(c.tokens, key)
	}
}

func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = make(map[string]*Token)
}
