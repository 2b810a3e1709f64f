package http

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/params"
)

// Encoding selects how parameters of body-carrying requests are serialized
type Encoding int

const (
	// EncodingURL sends parameters as an application/x-www-form-urlencoded body
	EncodingURL Encoding = iota
	// EncodingJSON sends parameters as an application/json body
	EncodingJSON
)

func (e Encoding) String() string {
	if e == EncodingJSON {
		return "json"
	}
	return "url"
}

// ParseEncoding maps "url", "form" and "json" to an Encoding
func ParseEncoding(s string) (Encoding, bool) {
	switch strings.ToLower(s) {
	case "", "url", "form":
		return EncodingURL, true
	case "json":
		return EncodingJSON, true
	default:
		return EncodingURL, false
	}
}

// Part is a named binary part of a multipart body
type Part struct {
	Name     string
	Data     []byte
	FileName string
	MimeType string
}

type Request struct {
	Method   string
	URL      string
	Headers  map[string]string
	Params   *params.Params
	Encoding Encoding
	Part     *Part
	Timeout  time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
		Params:  params.New(),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	for k := range r.Headers {
		if k != key && strings.EqualFold(k, key) {
			delete(r.Headers, k)
		}
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// Header returns the value of a header, matching the key case-insensitively
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Clone returns a deep copy, so that adapters can modify it freely
func (r *Request) Clone() *Request {
	c := *r
	c.Headers = make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		c.Headers[k] = v
	}
	if r.Params != nil {
		c.Params = r.Params.Clone()
	}
	if r.Part != nil {
		part := *r.Part
		c.Part = &part
	}
	return &c
}

// EncodesQuery reports whether parameters travel in the query string
func (r *Request) EncodesQuery() bool {
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		return r.Part == nil
	default:
		return false
	}
}

// IsMultipart reports whether the body is multipart/form-data
func (r *Request) IsMultipart() bool {
	return r.Part != nil
}

// BuildURL returns the URL with query parameters applied, as it goes on the wire
func (r *Request) BuildURL() string {
	if !r.EncodesQuery() || r.Params.Len() == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, vs := range r.Params.Values() {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Body returns the encoded body and its content type for requests that are
// neither query-encoded nor multipart.
func (r *Request) Body() ([]byte, string, error) {
	if r.EncodesQuery() || r.IsMultipart() || r.Params.Len() == 0 {
		return nil, "", nil
	}
	if r.Encoding == EncodingJSON {
		body, err := r.Params.MarshalJSON()
		return body, "application/json", err
	}
	return []byte(r.Params.Values().Encode()), "application/x-www-form-urlencoded", nil
}

// JoinURL resolves a call URL against a base URL by plain concatenation
func JoinURL(base, rel string) string {
	return base + rel
}
