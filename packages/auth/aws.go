package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/http"
)

const unsignedPayload = "UNSIGNED-PAYLOAD"

// AWSCredentials identifies the signer and the target service
type AWSCredentials struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
	Region       string
	Service      string
}

// AWSSigner is a request adapter signing every attempt with AWS Signature
// Version 4. Multipart bodies are built by the transport, so their payload
// is sent unsigned.
type AWSSigner struct {
	Credentials AWSCredentials
	now         func() time.Time
}

func NewAWSSigner(creds AWSCredentials) *AWSSigner {
	return &AWSSigner{Credentials: creds, now: time.Now}
}

func (s *AWSSigner) Adapt(ctx context.Context, req *http.Request) (*http.Request, error) {
	if s.Credentials.AccessKey == "" || s.Credentials.SecretKey == "" {
		return nil, errors.New("AWS auth credentials not provided")
	}
	if err := s.sign(req); err != nil {
		return nil, fmt.Errorf("aws sigv4: %w", err)
	}
	return req, nil
}

// sign sets Host, X-Amz-Date, X-Amz-Content-Sha256 and Authorization
func (s *AWSSigner) sign(req *http.Request) error {
	parsedURL, err := url.Parse(req.BuildURL())
	if err != nil {
		return err
	}

	t := s.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	dateStamp := t.Format("20060102")
	host := parsedURL.Host

	signedHeaders := "host;x-amz-date"
	canonicalHeaders := fmt.Sprintf("host:%s\nx-amz-date:%s\n", host, amzDate)
	if s.Credentials.SessionToken != "" {
		signedHeaders += ";x-amz-security-token"
		canonicalHeaders += fmt.Sprintf("x-amz-security-token:%s\n", s.Credentials.SessionToken)
	}

	payloadHash := unsignedPayload
	if !req.IsMultipart() {
		body, _, err := req.Body()
		if err != nil {
			return err
		}
		payloadHash = sha256Hash(string(body))
	}

	canonicalURI := parsedURL.EscapedPath()
	if canonicalURI == "" {
		canonicalURI = "/"
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI,
		createCanonicalQueryString(parsedURL.Query()),
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	credentialScope := fmt.Sprintf("%s/%s/%s/aws4_request",
		dateStamp, s.Credentials.Region, s.Credentials.Service)

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		credentialScope,
		sha256Hash(canonicalRequest),
	}, "\n")

	signingKey := getSignatureKey(s.Credentials.SecretKey, dateStamp, s.Credentials.Region, s.Credentials.Service)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	req.SetHeader("Host", host)
	req.SetHeader("X-Amz-Date", amzDate)
	req.SetHeader("X-Amz-Content-Sha256", payloadHash)
	if s.Credentials.SessionToken != "" {
		req.SetHeader("X-Amz-Security-Token", s.Credentials.SessionToken)
	}
	req.SetHeader("Authorization", fmt.Sprintf("AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.Credentials.AccessKey, credentialScope, signedHeaders, signature))
	return nil
}

func createCanonicalQueryString(values url.Values) string {
	if len(values) == 0 {
		return ""
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vals := values[k]
		sort.Strings(vals)
		for _, v := range vals {
			pairs = append(pairs, awsEscape(k)+"="+awsEscape(v))
		}
	}

	return strings.Join(pairs, "&")
}

// awsEscape is RFC 3986 escaping, which differs from QueryEscape on spaces
func awsEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func sha256Hash(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

func getSignatureKey(secretKey, dateStamp, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), dateStamp)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}
