package mock

import (
	"regexp"
	"strings"
	"sync"
)

// Route is one canned endpoint of the mock server
type Route struct {
	Method      string
	PathPattern string
	PathRegex   *regexp.Regexp
	Name        string
	Response    *Response

	mu       sync.Mutex
	failures int
	failure  *Response
	hits     int
}

// Response is the canned reply of a route
type Response struct {
	StatusCode  int               `json:"status" yaml:"status"`
	ContentType string            `json:"contentType,omitempty" yaml:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body        string            `json:"body,omitempty" yaml:"body,omitempty"`
}

// FailFirst makes the next n hits answer with resp instead of the route's
// response.
func (r *Route) FailFirst(n int, resp Response) *Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
	r.failure = withDefaults(resp)
	return r
}

// Hits returns how many requests the route has answered
func (r *Route) Hits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits
}

// next records a hit and picks the response for it
func (r *Route) next() *Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	if r.failures > 0 {
		r.failures--
		return r.failure
	}
	return r.Response
}

// Router matches incoming requests to routes
type Router struct {
	mu     sync.RWMutex
	routes []*Route
}

func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

func (r *Router) AddRoute(route *Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Replace swaps the whole route table at once
func (r *Router) Replace(routes []*Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = routes
}

func (r *Router) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Match finds a route matching the given method and path
func (r *Router) Match(method, path string) (*Route, map[string]string) {
	path = normalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, route := range r.routes {
		if !strings.EqualFold(route.Method, method) {
			continue
		}

		if params := matchPath(route, path); params != nil {
			return route, params
		}
	}

	return nil, nil
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// Remove trailing slash (except for root)
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

var paramPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// createPathRegex turns {{name}} segments into named capture groups
func createPathRegex(pattern string) *regexp.Regexp {
	regexPattern := paramPattern.ReplaceAllString(pattern, `(?P<$1>[^/]+)`)

	regex, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return regexp.MustCompile("^" + regexp.QuoteMeta(pattern) + "$")
	}
	return regex
}

func matchPath(route *Route, path string) map[string]string {
	if route.PathRegex != nil {
		matches := route.PathRegex.FindStringSubmatch(path)
		if matches != nil {
			params := make(map[string]string)
			names := route.PathRegex.SubexpNames()
			for i, name := range names {
				if i > 0 && name != "" && i < len(matches) {
					params[name] = matches[i]
				}
			}
			return params
		}
	}

	if route.PathPattern == path {
		return make(map[string]string)
	}

	return nil
}
