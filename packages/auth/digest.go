package auth

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// DigestAuth contains the parameters needed for digest authentication
type DigestAuth struct {
	Username string
	Password string
	Realm    string
	Nonce    string
	URI      string
	Qop      string
	Nc       string
	Cnonce   string
	Opaque   string
	Method   string
}

// Digest authenticates calls with HTTP Digest. It is both the adapter and
// the retrier of a client: a 401 carrying a Digest challenge is retried once
// with credentials computed from that challenge, and later calls reuse it.
type Digest struct {
	Username string
	Password string

	mu        sync.Mutex
	challenge map[string]string
	count     int
}

func NewDigest(username, password string) *Digest {
	return &Digest{Username: username, Password: password}
}

func (d *Digest) Adapt(ctx context.Context, req *http.Request) (*http.Request, error) {
	d.mu.Lock()
	challenge := d.challenge
	if challenge == nil {
		d.mu.Unlock()
		return req, nil
	}
	d.count++
	nc := fmt.Sprintf("%08x", d.count)
	d.mu.Unlock()

	u, err := url.Parse(req.BuildURL())
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	auth := &DigestAuth{
		Username: d.Username,
		Password: d.Password,
		Realm:    challenge["realm"],
		Nonce:    challenge["nonce"],
		URI:      u.RequestURI(),
		Opaque:   challenge["opaque"],
		Method:   req.Method,
	}
	if qop := selectQop(challenge["qop"]); qop != "" {
		cnonce, err := GenerateCnonce()
		if err != nil {
			return nil, fmt.Errorf("digest: %w", err)
		}
		auth.Qop = qop
		auth.Nc = nc
		auth.Cnonce = cnonce
	}
	req.SetHeader("Authorization", auth.BuildAuthorizationHeader())
	return req, nil
}

// Retry answers a 401 Digest challenge once per call
func (d *Digest) Retry(ctx context.Context, req *http.Request, err error, attempt int) ws.RetryDecision {
	if ws.StatusCode(err) != 401 || attempt > 1 {
		return ws.DoNotRetry
	}
	var wsErr *ws.Error
	if !errors.As(err, &wsErr) {
		return ws.DoNotRetry
	}
	header := headerValue(wsErr.Headers, "WWW-Authenticate")
	if !strings.HasPrefix(strings.ToLower(header), "digest ") {
		return ws.DoNotRetry
	}

	d.mu.Lock()
	d.challenge = ParseWWWAuthenticate(header)
	d.count = 0
	d.mu.Unlock()
	return ws.RetryAfter(0)
}

func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func selectQop(offered string) string {
	if offered == "" {
		return ""
	}
	for _, q := range strings.Split(offered, ",") {
		if strings.TrimSpace(q) == "auth" {
			return "auth"
		}
	}
	return ""
}

// ParseWWWAuthenticate parses the WWW-Authenticate header from a 401 response
func ParseWWWAuthenticate(header string) map[string]string {
	result := make(map[string]string)

	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "digest ") {
		header = header[7:]
	}

	for _, part := range splitChallenge(header) {
		part = strings.TrimSpace(part)
		if idx := strings.Index(part, "="); idx != -1 {
			key := strings.TrimSpace(part[:idx])
			value := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
			result[key] = value
		}
	}

	return result
}

// splitChallenge splits on commas outside quoted strings, so that
// qop="auth,auth-int" stays one parameter
func splitChallenge(s string) []string {
	var parts []string
	var quoted bool
	start := 0
	for i, r := range s {
		switch r {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// ComputeDigestResponse calculates the digest response hash
func (d *DigestAuth) ComputeDigestResponse() string {
	// HA1 = MD5(username:realm:password)
	ha1 := md5Hash(fmt.Sprintf("%s:%s:%s", d.Username, d.Realm, d.Password))

	// HA2 = MD5(method:uri)
	ha2 := md5Hash(fmt.Sprintf("%s:%s", d.Method, d.URI))

	if d.Qop == "auth" || d.Qop == "auth-int" {
		return md5Hash(fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, d.Nonce, d.Nc, d.Cnonce, d.Qop, ha2))
	}
	return md5Hash(fmt.Sprintf("%s:%s:%s", ha1, d.Nonce, ha2))
}

// BuildAuthorizationHeader creates the Authorization header value
func (d *DigestAuth) BuildAuthorizationHeader() string {
	response := d.ComputeDigestResponse()

	parts := []string{
		fmt.Sprintf(`username="%s"`, d.Username),
		fmt.Sprintf(`realm="%s"`, d.Realm),
		fmt.Sprintf(`nonce="%s"`, d.Nonce),
		fmt.Sprintf(`uri="%s"`, d.URI),
		fmt.Sprintf(`response="%s"`, response),
	}

	if d.Qop != "" {
		parts = append(parts, fmt.Sprintf(`qop=%s`, d.Qop))
		parts = append(parts, fmt.Sprintf(`nc=%s`, d.Nc))
		parts = append(parts, fmt.Sprintf(`cnonce="%s"`, d.Cnonce))
	}

	if d.Opaque != "" {
		parts = append(parts, fmt.Sprintf(`opaque="%s"`, d.Opaque))
	}

	return "Digest " + strings.Join(parts, ", ")
}

// GenerateCnonce generates a random client nonce
func GenerateCnonce() (string, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func md5Hash(s string) string {
	h := md5.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
