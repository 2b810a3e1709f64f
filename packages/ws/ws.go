package ws

import (
	"context"
	"maps"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/params"
)

// WS holds the configuration shared by every call to one backend.
//
// The exported fields may be changed between calls. Each Request copies them
// when it is created, so later changes never affect a request already built.
type WS struct {
	BaseURL string
	Headers map[string]string

	// DefaultCollectionKeyPath is used by requests that set no key path
	DefaultCollectionKeyPath string

	LogLevel              LogLevel
	PostParameterEncoding http.Encoding

	ShowsNetworkActivity bool
	Activity             ActivityIndicator

	ErrorHandler   ErrorHandler
	RequestAdapter Adapter
	RequestRetrier Retrier

	// Executor is where the typed call surface delivers results
	Executor async.Executor

	Transport http.Transport
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// Option configures a WS
type Option func(*WS)

// New creates a client for baseURL. Without WithTransport it uses an
// http.Client with default settings.
func New(baseURL string, opts ...Option) *WS {
	w := &WS{
		BaseURL:              baseURL,
		Headers:              make(map[string]string),
		ShowsNetworkActivity: true,
		Executor:             async.Immediate,
		Logger:               zap.NewNop(),
		Tracer:               otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.Transport == nil {
		w.Transport = http.NewClient(http.WithLogger(w.Logger))
	}
	return w
}

func WithTransport(t http.Transport) Option {
	return func(w *WS) {
		w.Transport = t
	}
}

func WithHeader(key, value string) Option {
	return func(w *WS) {
		w.Headers[key] = value
	}
}

func WithCollectionKeyPath(path string) Option {
	return func(w *WS) {
		w.DefaultCollectionKeyPath = path
	}
}

func WithLogLevel(l LogLevel) Option {
	return func(w *WS) {
		w.LogLevel = l
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *WS) {
		if logger != nil {
			w.Logger = logger
		}
	}
}

func WithEncoding(e http.Encoding) Option {
	return func(w *WS) {
		w.PostParameterEncoding = e
	}
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(w *WS) {
		w.ErrorHandler = h
	}
}

func WithAdapter(a Adapter) Option {
	return func(w *WS) {
		w.RequestAdapter = a
	}
}

func WithRetrier(r Retrier) Option {
	return func(w *WS) {
		w.RequestRetrier = r
	}
}

// WithExecutor sets where results of the typed call surface are delivered
func WithExecutor(e async.Executor) Option {
	return func(w *WS) {
		if e != nil {
			w.Executor = e
		}
	}
}

func WithActivityIndicator(a ActivityIndicator) Option {
	return func(w *WS) {
		w.Activity = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(w *WS) {
		if t != nil {
			w.Tracer = t
		}
	}
}

// DefaultRequest returns a GET request carrying the client's current
// configuration and no URL.
func (w *WS) DefaultRequest() *Request {
	r := NewRequest(w.Transport)
	r.baseURL = w.BaseURL
	r.defaultHeaders = maps.Clone(w.Headers)
	r.defaultCollectionKeyPath = w.DefaultCollectionKeyPath
	r.logLevel = w.LogLevel
	r.encoding = w.PostParameterEncoding
	r.showsNetworkActivity = w.ShowsNetworkActivity
	r.activity = w.Activity
	r.errorHandler = w.ErrorHandler
	r.adapter = w.RequestAdapter
	r.retrier = w.RequestRetrier
	r.SetLogger(w.Logger)
	r.SetTracer(w.Tracer)
	return r
}

func (w *WS) call(verb Verb, url string, p *params.Params) *Request {
	return w.DefaultRequest().Configure(verb, url, p)
}

func (w *WS) GetRequest(url string, p *params.Params) *Request {
	return w.call(VerbGet, url, p)
}

func (w *WS) PostRequest(url string, p *params.Params) *Request {
	return w.call(VerbPost, url, p)
}

func (w *WS) PutRequest(url string, p *params.Params) *Request {
	return w.call(VerbPut, url, p)
}

func (w *WS) DeleteRequest(url string, p *params.Params) *Request {
	return w.call(VerbDelete, url, p)
}

// PostMultipartRequest builds a POST whose body is multipart/form-data
// holding p and one binary part.
func (w *WS) PostMultipartRequest(url string, p *params.Params, name string, data []byte, fileName, mimeType string) *Request {
	return w.call(VerbPost, url, p).SetPart(name, data, fileName, mimeType)
}

func (w *WS) PutMultipartRequest(url string, p *params.Params, name string, data []byte, fileName, mimeType string) *Request {
	return w.call(VerbPut, url, p).SetPart(name, data, fileName, mimeType)
}

func (w *WS) deliver(c *async.Call[json.JSON]) *async.Call[json.JSON] {
	return c.ReceiveOn(w.Executor)
}

func (w *WS) deliverVoid(ctx context.Context, r *Request) *async.Call[async.Void] {
	r.SetReturnsJSON(false)
	return async.ToVoid(r.Fetch(ctx)).ReceiveOn(w.Executor)
}

func (w *WS) GetJSON(ctx context.Context, url string, p *params.Params) *async.Call[json.JSON] {
	return w.deliver(w.GetRequest(url, p).Fetch(ctx))
}

func (w *WS) PostJSON(ctx context.Context, url string, p *params.Params) *async.Call[json.JSON] {
	return w.deliver(w.PostRequest(url, p).Fetch(ctx))
}

func (w *WS) PutJSON(ctx context.Context, url string, p *params.Params) *async.Call[json.JSON] {
	return w.deliver(w.PutRequest(url, p).Fetch(ctx))
}

func (w *WS) DeleteJSON(ctx context.Context, url string, p *params.Params) *async.Call[json.JSON] {
	return w.deliver(w.DeleteRequest(url, p).Fetch(ctx))
}

// GetVoid runs the same exchange and checks as GetJSON but drops the body
func (w *WS) GetVoid(ctx context.Context, url string, p *params.Params) *async.Call[async.Void] {
	return w.deliverVoid(ctx, w.GetRequest(url, p))
}

func (w *WS) PostVoid(ctx context.Context, url string, p *params.Params) *async.Call[async.Void] {
	return w.deliverVoid(ctx, w.PostRequest(url, p))
}

func (w *WS) PutVoid(ctx context.Context, url string, p *params.Params) *async.Call[async.Void] {
	return w.deliverVoid(ctx, w.PutRequest(url, p))
}

func (w *WS) DeleteVoid(ctx context.Context, url string, p *params.Params) *async.Call[async.Void] {
	return w.deliverVoid(ctx, w.DeleteRequest(url, p))
}

func (w *WS) PostMultipart(ctx context.Context, url string, p *params.Params, name string, data []byte, fileName, mimeType string) *async.Call[json.JSON] {
	return w.deliver(w.PostMultipartRequest(url, p, name, data, fileName, mimeType).Fetch(ctx))
}

func (w *WS) PutMultipart(ctx context.Context, url string, p *params.Params, name string, data []byte, fileName, mimeType string) *async.Call[json.JSON] {
	return w.deliver(w.PutMultipartRequest(url, p, name, data, fileName, mimeType).Fetch(ctx))
}
