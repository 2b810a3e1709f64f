// Package mock provides a fake JSON backend with canned routes, used to
// exercise ws clients in tests and from the command line.
package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Server is a mock HTTP server answering from a route table
type Server struct {
	router *Router
	delay  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	requests []RecordedRequest
}

// RecordedRequest is a request received by the server
type RecordedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
}

// Option is a functional option for Server
type Option func(*Server)

// WithDelay adds a delay to all responses
func WithDelay(delay time.Duration) Option {
	return func(s *Server) {
		s.delay = delay
	}
}

// WithLogger logs every handled request
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		router: NewRouter(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers a route. Path segments written as {{name}} match any
// value, which is substituted for {{name}} in the response body.
func (s *Server) Handle(method, pattern string, resp Response) *Route {
	pattern = normalizePath(pattern)
	route := &Route{
		Method:      strings.ToUpper(method),
		PathPattern: pattern,
		PathRegex:   createPathRegex(pattern),
		Response:    withDefaults(resp),
	}
	s.router.AddRoute(route)
	return route
}

// JSON registers a route answering body with status
func (s *Server) JSON(method, pattern string, status int, body string) *Route {
	return s.Handle(method, pattern, Response{StatusCode: status, Body: body})
}

func withDefaults(resp Response) *Response {
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	if resp.ContentType == "" {
		resp.ContentType = "application/json"
	}
	return &resp
}

// routeFile is the on-disk format read by LoadFile
type routeFile struct {
	Routes []struct {
		Name      string   `json:"name" yaml:"name"`
		Method    string   `json:"method" yaml:"method"`
		Path      string   `json:"path" yaml:"path"`
		Response  Response `json:"response" yaml:"response"`
		FailFirst int      `json:"failFirst" yaml:"failFirst"`
		Failure   Response `json:"failure" yaml:"failure"`
	} `json:"routes" yaml:"routes"`
}

// LoadFile loads routes from a YAML or JSON file. OpenAPI 3 documents are
// recognized and loaded with LoadOpenAPI.
func (s *Server) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read routes file %s: %w", path, err)
	}

	if isOpenAPI(data) {
		return s.LoadOpenAPI(path)
	}

	// YAML is a superset of JSON, so one decoder serves both formats
	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse routes file %s: %w", filepath.Base(path), err)
	}

	for i, r := range file.Routes {
		if r.Method == "" || r.Path == "" {
			return fmt.Errorf("route %d in %s: method and path are required", i+1, filepath.Base(path))
		}
		route := s.Handle(r.Method, r.Path, r.Response)
		route.Name = r.Name
		if r.FailFirst > 0 {
			failure := r.Failure
			if failure.StatusCode == 0 {
				failure.StatusCode = http.StatusServiceUnavailable
			}
			route.FailFirst(r.FailFirst, failure)
		}
	}
	return nil
}

// Reload replaces every route with those read from paths. On error the
// current routes are kept.
func (s *Server) Reload(paths ...string) error {
	fresh := NewServer()
	for _, p := range paths {
		if err := fresh.LoadFile(p); err != nil {
			return err
		}
	}
	s.router.Replace(fresh.Routes())
	s.logger.Info("routes reloaded", zap.Int("routes", len(fresh.Routes())))
	return nil
}

// Routes returns all registered routes
func (s *Server) Routes() []*Route {
	return s.router.Routes()
}

// Requests returns the requests received so far, oldest first
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request
func (s *Server) LastRequest() (RecordedRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("mock server starting", zap.String("addr", addr), zap.Int("routes", len(s.Routes())))
	for _, route := range s.Routes() {
		s.logger.Debug("route", zap.String("method", route.Method), zap.String("path", route.PathPattern), zap.Int("status", route.Response.StatusCode))
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, _ := io.ReadAll(r.Body)
	s.record(r, body)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}

	route, params := s.router.Match(r.Method, r.URL.Path)
	if route == nil {
		s.logger.Info("mock request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", http.StatusNotFound), zap.Duration("took", time.Since(start)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
		return
	}

	resp := route.next()
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("Content-Type", resp.ContentType)

	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write([]byte(resolveBodyParams(resp.Body, params)))

	s.logger.Info("mock request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
}

func (s *Server) record(r *http.Request, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header.Clone(),
		Body:    body,
	})
}

func resolveBodyParams(body string, params map[string]string) string {
	result := body
	for key, value := range params {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
