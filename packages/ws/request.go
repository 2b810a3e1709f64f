package ws

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/params"
)

const tracerName = "github.com/abdul-hamid-achik/ws"

// Verb is the HTTP method of a call
type Verb string

const (
	VerbGet    Verb = "GET"
	VerbPost   Verb = "POST"
	VerbPut    Verb = "PUT"
	VerbDelete Verb = "DELETE"
)

// Request describes and executes exactly one HTTP exchange. It is configured
// through its setters until Fetch is called; Fetch snapshots the
// configuration, so later changes do not affect the running call. A Request
// is single-use and must not be shared between goroutines while configured.
type Request struct {
	verb    Verb
	baseURL string
	url     string
	params  *params.Params

	defaultHeaders map[string]string
	headers        map[string]string

	encoding                 http.Encoding
	returnsJSON              bool
	collectionKeyPath        string
	defaultCollectionKeyPath string
	adapter                  Adapter
	retrier                  Retrier
	errorHandler             ErrorHandler
	schema                   *gojsonschema.Schema
	logLevel                 LogLevel
	showsNetworkActivity     bool
	part                     *http.Part
	timeout                  time.Duration

	transport http.Transport
	logger    *zap.Logger
	activity  ActivityIndicator
	tracer    trace.Tracer

	started atomic.Bool
}

// NewRequest returns a GET request with no URL that will run on transport.
// Requests are usually created through a WS client instead.
func NewRequest(transport http.Transport) *Request {
	return &Request{
		verb:        VerbGet,
		params:      params.New(),
		headers:     make(map[string]string),
		returnsJSON: true,
		transport:   transport,
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
	}
}

// Configure sets the shape of the call. url may be relative to the base URL.
func (r *Request) Configure(verb Verb, url string, p *params.Params) *Request {
	r.verb = verb
	r.url = url
	if p == nil {
		r.params = params.New()
	} else {
		r.params = p.Clone()
	}
	return r
}

func (r *Request) SetBaseURL(baseURL string) *Request {
	r.baseURL = baseURL
	return r
}

// SetHeader sets a request-level header, which wins over client defaults
func (r *Request) SetHeader(key, value string) *Request {
	r.headers[key] = value
	return r
}

func (r *Request) SetEncoding(e http.Encoding) *Request {
	r.encoding = e
	return r
}

// SetReturnsJSON selects whether the success value is the parsed body or
// JSON null. The body is validated in both cases.
func (r *Request) SetReturnsJSON(returnsJSON bool) *Request {
	r.returnsJSON = returnsJSON
	return r
}

// SetCollectionKeyPath requires an array at path in the response body,
// overriding the client default.
func (r *Request) SetCollectionKeyPath(path string) *Request {
	r.collectionKeyPath = path
	return r
}

func (r *Request) SetAdapter(a Adapter) *Request {
	r.adapter = a
	return r
}

func (r *Request) SetRetrier(rt Retrier) *Request {
	r.retrier = rt
	return r
}

func (r *Request) SetErrorHandler(h ErrorHandler) *Request {
	r.errorHandler = h
	return r
}

// SetSchema validates successful bodies against schema. Mismatches fail the
// call with KindShape.
func (r *Request) SetSchema(schema *gojsonschema.Schema) *Request {
	r.schema = schema
	return r
}

func (r *Request) SetLogLevel(l LogLevel) *Request {
	r.logLevel = l
	return r
}

func (r *Request) SetLogger(logger *zap.Logger) *Request {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Request) SetActivityIndicator(a ActivityIndicator, show bool) *Request {
	r.activity = a
	r.showsNetworkActivity = show
	return r
}

func (r *Request) SetTracer(t trace.Tracer) *Request {
	if t != nil {
		r.tracer = t
	}
	return r
}

// SetPart attaches a binary part, turning the body into multipart/form-data
func (r *Request) SetPart(name string, data []byte, fileName, mimeType string) *Request {
	r.part = &http.Part{Name: name, Data: data, FileName: fileName, MimeType: mimeType}
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

func (r *Request) Verb() Verb {
	return r.verb
}

// URL returns the call URL resolved against the base URL
func (r *Request) URL() string {
	return http.JoinURL(r.baseURL, r.url)
}

func (r *Request) Params() *params.Params {
	return r.params.Clone()
}

func (r *Request) ReturnsJSON() bool {
	return r.returnsJSON
}

// CollectionKeyPath returns the effective key path: the request's own, else
// the client default.
func (r *Request) CollectionKeyPath() string {
	if r.collectionKeyPath != "" {
		return r.collectionKeyPath
	}
	return r.defaultCollectionKeyPath
}

// Headers returns the effective headers: client defaults overridden by
// request-level headers. Keys are canonicalized.
func (r *Request) Headers() map[string]string {
	merged := make(map[string]string, len(r.defaultHeaders)+len(r.headers))
	for k, v := range r.defaultHeaders {
		merged[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	for k, v := range r.headers {
		merged[textproto.CanonicalMIMEHeaderKey(k)] = v
	}
	return merged
}

// Fetch starts the exchange and returns its result. A Request can be
// fetched once; later calls fail with ErrAlreadyStarted.
func (r *Request) Fetch(ctx context.Context) *async.Call[json.JSON] {
	if !r.started.CompareAndSwap(false, true) {
		return async.Failed[json.JSON](ErrAlreadyStarted)
	}
	p := r.plan()
	return async.Go(ctx, p.run)
}

// plan is the immutable snapshot of a Request taken when it starts
type plan struct {
	method       string
	url          string
	request      *http.Request
	returnsJSON  bool
	keyPath      string
	adapter      Adapter
	retrier      Retrier
	errorHandler ErrorHandler
	schema       *gojsonschema.Schema
	logLevel     LogLevel
	showActivity bool

	transport http.Transport
	logger    *zap.Logger
	activity  ActivityIndicator
	tracer    trace.Tracer
}

func (r *Request) plan() *plan {
	req := http.NewRequest(string(r.verb), r.URL())
	req.Headers = r.Headers()
	req.Params = r.params.Clone()
	req.Encoding = r.encoding
	req.Timeout = r.timeout
	if r.part != nil {
		part := *r.part
		req.Part = &part
	}

	return &plan{
		method:       req.Method,
		url:          req.URL,
		request:      req,
		returnsJSON:  r.returnsJSON,
		keyPath:      r.CollectionKeyPath(),
		adapter:      r.adapter,
		retrier:      r.retrier,
		errorHandler: r.errorHandler,
		schema:       r.schema,
		logLevel:     r.logLevel,
		showActivity: r.showsNetworkActivity && r.activity != nil,
		transport:    r.transport,
		logger:       r.logger,
		activity:     r.activity,
		tracer:       r.tracer,
	}
}

func (p *plan) run(ctx context.Context) (json.JSON, error) {
	ctx, span := p.tracer.Start(ctx, "ws "+p.method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", p.method),
			attribute.String("url.full", p.url),
		),
	)
	defer span.End()

	body, err := p.execute(ctx, span)
	if err != nil {
		var wsErr *Error
		if errors.As(err, &wsErr) {
			p.logFailure(wsErr)
			span.SetAttributes(attribute.String("ws.error.kind", wsErr.Kind.String()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return json.JSON{}, err
	}
	return body, nil
}

func (p *plan) execute(ctx context.Context, span trace.Span) (json.JSON, error) {
	if p.transport == nil {
		return json.JSON{}, &Error{Kind: KindTransport, Attempt: 1, Err: errors.New("no transport configured")}
	}

	for attempt := 1; ; attempt++ {
		req := p.request.Clone()
		if p.adapter != nil {
			adapted, err := p.adapter.Adapt(ctx, req)
			if err != nil {
				return json.JSON{}, &Error{Kind: KindAdaptation, Attempt: attempt, Err: err}
			}
			if adapted != nil {
				req = adapted
			}
		}

		resp, err := p.exchange(ctx, req, attempt)
		if err == nil {
			return p.decode(resp, attempt)
		}

		if p.retrier == nil || ctx.Err() != nil {
			return json.JSON{}, err
		}
		decision := p.retrier.Retry(ctx, req, err, attempt)
		if !decision.Retry {
			return json.JSON{}, err
		}

		p.logRetry(err, attempt, decision)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("ws.attempt", attempt),
			attribute.String("ws.retry.delay", decision.Delay.String()),
		))
		if !sleep(ctx, decision.Delay) {
			return json.JSON{}, err
		}
	}
}

func (p *plan) exchange(ctx context.Context, req *http.Request, attempt int) (*http.Response, error) {
	p.logCall(req, attempt)

	if p.showActivity {
		p.activity.Begin()
	}
	resp, err := p.transport.Do(ctx, req)
	if p.showActivity {
		p.activity.End()
	}

	if err != nil {
		return nil, &Error{Kind: KindTransport, Attempt: attempt, Err: err}
	}
	p.logResponse(req, resp, attempt)

	if !resp.IsSuccess() {
		status := resp.Status
		if status == "" {
			status = fmt.Sprintf("%d", resp.StatusCode)
		}
		return resp, &Error{
			Kind:       KindTransport,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
			Attempt:    attempt,
			Err:        fmt.Errorf("unexpected status %s", status),
		}
	}
	return resp, nil
}

func (p *plan) decode(resp *http.Response, attempt int) (json.JSON, error) {
	fail := func(kind Kind, err error) (json.JSON, error) {
		return json.JSON{}, &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
			Attempt:    attempt,
			Err:        err,
		}
	}

	body, err := json.Parse(resp.Body)
	if err != nil {
		// a discarded body only has to parse when it claims to be JSON
		if !p.returnsJSON && !resp.IsJSON() {
			return json.JSON{}, nil
		}
		return fail(KindParsing, err)
	}

	if p.keyPath != "" {
		if _, err := body.ArrayAt(p.keyPath); err != nil {
			return fail(KindShape, err)
		}
	}

	if p.schema != nil {
		if err := validateSchema(p.schema, body); err != nil {
			return fail(KindShape, err)
		}
	}

	if p.errorHandler != nil {
		if appErr := p.errorHandler(body); appErr != nil {
			return fail(KindApplication, appErr)
		}
	}

	if !p.returnsJSON {
		return json.JSON{}, nil
	}
	return body, nil
}

// CompileSchema compiles a JSON schema document for Request.SetSchema
func CompileSchema(schema []byte) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
}

func validateSchema(schema *gojsonschema.Schema, body json.JSON) error {
	result, err := schema.Validate(gojsonschema.NewStringLoader(body.Raw()))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema mismatch: %s", strings.Join(msgs, "; "))
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
