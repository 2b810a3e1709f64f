package oauth2

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// authServer issues tokens tok-1, tok-2, ... and accepts only the latest
type authServer struct {
	issued  atomic.Int32
	grants  []string
	revoked atomic.Bool
}

func (a *authServer) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	switch r.URL.Path {
	case "/token":
		_ = r.ParseForm()
		a.grants = append(a.grants, r.PostForm.Get("grant_type"))
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
			return
		}
		n := a.issued.Add(1)
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"bearer","expires_in":3600,"refresh_token":"r-%d"}`, n, n)
	default:
		want := fmt.Sprintf("Bearer tok-%d", a.issued.Load())
		if a.revoked.Load() && r.Header.Get("Authorization") == "Bearer tok-1" {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != want {
			w.WriteHeader(stdhttp.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func setup(t *testing.T, secret string) (*authServer, *ws.WS, *Provider) {
	t.Helper()
	as := &authServer{}
	server := httptest.NewServer(as)
	t.Cleanup(server.Close)

	provider := NewProvider(&Config{
		TokenURL:     server.URL + "/token",
		ClientID:     "id",
		ClientSecret: secret,
		GrantType:    ClientCredentials,
	}, http.NewClient())
	handler := NewHandler(provider)
	return as, ws.New(server.URL, ws.WithAdapter(handler), ws.WithRetrier(handler)), provider
}

func TestHandler_AttachesCachedToken(t *testing.T) {
	as, api, _ := setup(t, "secret")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := api.GetJSON(ctx, "/me", nil).Await(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), as.issued.Load())
}

func TestHandler_RefetchesAfter401(t *testing.T) {
	as, api, _ := setup(t, "secret")
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/me", nil).Await(ctx)
	require.NoError(t, err)

	as.revoked.Store(true)
	_, err = api.GetJSON(ctx, "/me", nil).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), as.issued.Load())
}

func TestHandler_TokenFailureIsAdaptationError(t *testing.T) {
	_, api, _ := setup(t, "wrong")
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/me", nil).Await(ctx)

	assert.ErrorIs(t, err, ws.ErrAdaptation)
	assert.ErrorContains(t, err, "invalid_client - bad secret")
}

func TestProvider_RefreshesExpiredToken(t *testing.T) {
	as, _, provider := setup(t, "secret")
	ctx := context.Background()

	first, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", first.RefreshToken)

	provider.cache.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	second, err := provider.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", second.AccessToken)
	assert.Equal(t, []string{"client_credentials", "refresh_token"}, as.grants)
}

func TestToken_AuthorizationHeader(t *testing.T) {
	assert.Equal(t, "Bearer x", (&Token{AccessToken: "x", TokenType: "bearer"}).AuthorizationHeader())
	assert.Equal(t, "Bearer x", (&Token{AccessToken: "x"}).AuthorizationHeader())
	assert.Equal(t, "MAC x", (&Token{AccessToken: "x", TokenType: "MAC"}).AuthorizationHeader())
}

func TestToken_IsExpired(t *testing.T) {
	assert.False(t, (&Token{}).IsExpired())
	assert.True(t, (&Token{ExpiresAt: time.Now().Add(10 * time.Second)}).IsExpired())
	assert.False(t, (&Token{ExpiresAt: time.Now().Add(time.Hour)}).IsExpired())
}

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		fields  []string
		want    *Config
		wantErr bool
	}{
		{
			name:   "client credentials with scopes",
			fields: []string{"client_credentials", "https://auth/token", "id", "secret", "read,write"},
			want: &Config{GrantType: ClientCredentials, TokenURL: "https://auth/token", ClientID: "id", ClientSecret: "secret",
				Scopes: []string{"read", "write"}},
		},
		{
			name:   "password",
			fields: []string{"password", "https://auth/token", "id", "secret", "bob", "pw"},
			want: &Config{GrantType: Password, TokenURL: "https://auth/token", ClientID: "id", ClientSecret: "secret",
				Username: "bob", Password: "pw"},
		},
		{name: "password missing user", fields: []string{"password", "u", "id", "s"}, wantErr: true},
		{name: "too short", fields: []string{"client_credentials"}, wantErr: true},
		{name: "unknown grant", fields: []string{"implicit", "u", "id", "s"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.fields)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenCache_Invalidate(t *testing.T) {
	c := NewTokenCache()
	c.Set("k", &Token{AccessToken: "a"})

	c.Invalidate("k", "other")
	_, ok := c.Get("k")
	assert.True(t, ok)

	c.Invalidate("k", "a")
	_, ok = c.Get("k")
	assert.False(t, ok)
}
