package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/ws/packages/async"
	"github.com/abdul-hamid-achik/ws/packages/http"
	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/mock"
	"github.com/abdul-hamid-achik/ws/packages/params"
)

func newBackend(t *testing.T, opts ...Option) (*mock.Server, *WS) {
	t.Helper()
	srv := mock.NewServer()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, New(ts.URL, opts...)
}

func newParams(t *testing.T, kv ...any) *params.Params {
	t.Helper()
	p := params.New()
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, p.Set(kv[i].(string), kv[i+1]))
	}
	return p
}

func errorField(body json.JSON) error {
	if msg, ok := body.Get("error"); ok {
		s, _ := msg.AsString()
		return errors.New(s)
	}
	return nil
}

func TestWS_GetJSON(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("GET", "/users/{{id}}", 200, `{"id":{{id}},"name":"ada"}`)

	ctx := context.Background()
	body, err := api.GetJSON(ctx, "/users/7", nil).Await(ctx)

	require.NoError(t, err)
	name, ok := body.Get("name")
	require.True(t, ok)
	s, _ := name.AsString()
	assert.Equal(t, "ada", s)
	id, _ := body.Get("id")
	n, _ := id.AsInt()
	assert.Equal(t, int64(7), n)
}

func TestWS_VerbsAndParams(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("GET", "/items", 200, `[]`)
	srv.JSON("POST", "/items", 201, `{"id":1}`)
	srv.JSON("PUT", "/items/1", 200, `{"id":1}`)
	srv.JSON("DELETE", "/items/1", 204, ``)
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/items", newParams(t, "page", 2)).Await(ctx)
	require.NoError(t, err)
	last, _ := srv.LastRequest()
	assert.Equal(t, "2", last.Query.Get("page"))

	_, err = api.PostJSON(ctx, "/items", newParams(t, "name", "lamp")).Await(ctx)
	require.NoError(t, err)
	last, _ = srv.LastRequest()
	assert.Equal(t, "POST", last.Method)
	assert.Equal(t, "name=lamp", string(last.Body))

	api.PostParameterEncoding = http.EncodingJSON
	_, err = api.PutJSON(ctx, "/items/1", newParams(t, "name", "desk")).Await(ctx)
	require.NoError(t, err)
	last, _ = srv.LastRequest()
	assert.JSONEq(t, `{"name":"desk"}`, string(last.Body))

	body, err := api.DeleteJSON(ctx, "/items/1", nil).Await(ctx)
	require.NoError(t, err)
	assert.True(t, body.IsNull())
}

func TestWS_JSONAndVoidSucceedAndFailTogether(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		keyPath string
		wantErr Kind
	}{
		{name: "success", status: 200, body: `{"ok":true}`},
		{name: "empty body", status: 200, body: ``},
		{name: "server error", status: 500, body: `{}`, wantErr: KindTransport},
		{name: "not found", status: 404, body: `{}`, wantErr: KindTransport},
		{name: "malformed", status: 200, body: `{"ok":`, wantErr: KindParsing},
		{name: "application error", status: 200, body: `{"error":"quota"}`, wantErr: KindApplication},
		{name: "wrong shape", status: 200, body: `{"data":{}}`, keyPath: "data", wantErr: KindShape},
		{name: "right shape", status: 200, body: `{"data":[1,2]}`, keyPath: "data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, api := newBackend(t, WithErrorHandler(errorField), WithCollectionKeyPath(tt.keyPath))
			srv.JSON("GET", "/thing", tt.status, tt.body)
			ctx := context.Background()

			_, jsonErr := api.GetJSON(ctx, "/thing", nil).Await(ctx)
			_, voidErr := api.GetVoid(ctx, "/thing", nil).Await(ctx)

			if tt.wantErr == 0 {
				assert.NoError(t, jsonErr)
				assert.NoError(t, voidErr)
				return
			}
			assert.Equal(t, tt.wantErr, KindOf(jsonErr))
			assert.Equal(t, tt.wantErr, KindOf(voidErr))
		})
	}
}

func TestWS_VoidVariants(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("POST", "/a", 200, `{}`)
	srv.JSON("PUT", "/a", 200, `{}`)
	srv.JSON("DELETE", "/a", 200, `{}`)
	ctx := context.Background()

	for _, call := range []*async.Call[async.Void]{
		api.PostVoid(ctx, "/a", nil),
		api.PutVoid(ctx, "/a", nil),
		api.DeleteVoid(ctx, "/a", nil),
	} {
		_, err := call.Await(ctx)
		assert.NoError(t, err)
	}
	assert.Len(t, srv.Requests(), 3)
}

func TestWS_VoidDiscardsNonJSONBody(t *testing.T) {
	srv, api := newBackend(t)
	srv.Handle("DELETE", "/a", mock.Response{StatusCode: 200, ContentType: "text/plain", Body: "OK"})
	srv.Handle("DELETE", "/b", mock.Response{StatusCode: 200, ContentType: "application/problem+json", Body: "OK"})
	ctx := context.Background()

	_, err := api.DeleteVoid(ctx, "/a", nil).Await(ctx)
	assert.NoError(t, err)

	_, err = api.DeleteJSON(ctx, "/a", nil).Await(ctx)
	assert.Equal(t, KindParsing, KindOf(err))

	_, err = api.DeleteVoid(ctx, "/b", nil).Await(ctx)
	assert.Equal(t, KindParsing, KindOf(err), "a body declared as JSON must parse")
}

func TestWS_RequestHeadersOverrideDefaults(t *testing.T) {
	srv, api := newBackend(t, WithHeader("X-Client", "default"), WithHeader("X-Version", "1"))
	srv.JSON("GET", "/h", 200, `{}`)
	ctx := context.Background()

	req := api.GetRequest("/h", nil).SetHeader("x-version", "2")
	assert.Equal(t, map[string]string{"X-Client": "default", "X-Version": "2"}, req.Headers())

	_, err := req.Fetch(ctx).Await(ctx)
	require.NoError(t, err)

	last, _ := srv.LastRequest()
	assert.Equal(t, "default", last.Headers.Get("X-Client"))
	assert.Equal(t, []string{"2"}, last.Headers.Values("X-Version"))
}

func TestWS_ConfigIsCopiedAtCreation(t *testing.T) {
	srv, api := newBackend(t, WithHeader("X-Env", "old"))
	srv.JSON("GET", "/c", 200, `{}`)
	ctx := context.Background()

	req := api.GetRequest("/c", nil)
	api.Headers["X-Env"] = "new"
	api.BaseURL = "http://127.0.0.1:1"

	_, err := req.Fetch(ctx).Await(ctx)
	require.NoError(t, err)
	last, _ := srv.LastRequest()
	assert.Equal(t, "old", last.Headers.Get("X-Env"))
}

func TestWS_ShapeErrorForNonArrayAtKeyPath(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("GET", "/list", 200, `{"data":{}}`)
	ctx := context.Background()

	_, err := api.GetRequest("/list", nil).SetCollectionKeyPath("data").Fetch(ctx).Await(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShape)
	assert.ErrorIs(t, err, json.ErrNotArray)
}

func TestWS_RequestKeyPathOverridesDefault(t *testing.T) {
	srv, api := newBackend(t, WithCollectionKeyPath("items"))
	srv.JSON("GET", "/list", 200, `{"results":[1]}`)
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/list", nil).Await(ctx)
	assert.ErrorIs(t, err, ErrShape)

	req := api.GetRequest("/list", nil).SetCollectionKeyPath("results")
	assert.Equal(t, "results", req.CollectionKeyPath())
	_, err = req.Fetch(ctx).Await(ctx)
	assert.NoError(t, err)
}

func TestWS_ApplicationError(t *testing.T) {
	srv, api := newBackend(t, WithErrorHandler(errorField))
	srv.JSON("POST", "/pay", 200, `{"error":"card declined"}`)
	ctx := context.Background()

	_, err := api.PostJSON(ctx, "/pay", nil).Await(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrApplication)
	assert.Contains(t, err.Error(), "card declined")
	assert.Equal(t, 200, StatusCode(err))
}

func TestWS_TransportErrorCarriesStatusAndBody(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("GET", "/boom", 503, `{"error":"down"}`)
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/boom", nil).Await(ctx)

	var wsErr *Error
	require.ErrorAs(t, err, &wsErr)
	assert.Equal(t, KindTransport, wsErr.Kind)
	assert.Equal(t, 503, wsErr.StatusCode)
	assert.JSONEq(t, `{"error":"down"}`, string(wsErr.Body))
	assert.Equal(t, 1, wsErr.Attempt)
}

func TestWS_RetriesOnceThenSucceeds(t *testing.T) {
	retrier := RetrierFunc(func(ctx context.Context, req *http.Request, err error, attempt int) RetryDecision {
		if attempt == 1 {
			return RetryAfter(0)
		}
		return DoNotRetry
	})
	srv, api := newBackend(t, WithRetrier(retrier))
	route := srv.JSON("GET", "/flaky", 200, `{"ok":true}`).FailFirst(1, mock.Response{StatusCode: 500})
	ctx := context.Background()

	body, err := api.GetJSON(ctx, "/flaky", nil).Await(ctx)

	require.NoError(t, err)
	ok, _ := body.Get("ok")
	b, _ := ok.AsBool()
	assert.True(t, b)
	assert.Equal(t, 2, route.Hits())
}

func TestWS_NoRetrierFirstFailureIsTerminal(t *testing.T) {
	srv, api := newBackend(t)
	route := srv.JSON("GET", "/flaky", 200, `{}`).FailFirst(1, mock.Response{StatusCode: 500})
	ctx := context.Background()

	_, err := api.GetJSON(ctx, "/flaky", nil).Await(ctx)

	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, route.Hits())
}

func TestWS_CancelSuppressesCompletion(t *testing.T) {
	srv := mock.NewServer(mock.WithDelay(300 * time.Millisecond))
	srv.JSON("GET", "/slow", 200, `{}`)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	api := New(ts.URL)

	var fired atomic.Bool
	call := api.GetJSON(context.Background(), "/slow", nil)
	call.Finally(func() { fired.Store(true) })

	time.Sleep(50 * time.Millisecond)
	call.Cancel()

	_, err := call.Await(context.Background())
	assert.ErrorIs(t, err, async.ErrCanceled)

	time.Sleep(400 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestWS_DeliversOnExecutor(t *testing.T) {
	queue := async.NewSerialQueue()
	defer queue.Close()
	var onQueue atomic.Bool
	exec := async.ExecutorFunc(func(fn func()) {
		queue.Execute(func() {
			onQueue.Store(true)
			fn()
		})
	})

	srv, api := newBackend(t, WithExecutor(exec))
	srv.JSON("GET", "/q", 200, `{}`)

	done := make(chan struct{})
	api.GetVoid(context.Background(), "/q", nil).Finally(func() {
		assert.True(t, onQueue.Load())
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("result was not delivered")
	}
}

func TestWS_CallbacksAfterCompletionRunOnExecutor(t *testing.T) {
	queue := async.NewSerialQueue()
	defer queue.Close()
	var onQueue atomic.Int32
	exec := async.ExecutorFunc(func(fn func()) {
		queue.Execute(func() {
			onQueue.Add(1)
			defer onQueue.Add(-1)
			fn()
		})
	})

	srv, api := newBackend(t, WithExecutor(exec))
	srv.JSON("GET", "/q", 200, `{"n": 1}`)

	ctx := context.Background()
	call := api.GetJSON(ctx, "/q", nil)
	_, err := call.Await(ctx)
	require.NoError(t, err)

	var thenOnQueue atomic.Bool
	done := make(chan struct{})
	call.Then(func(json.JSON) {
		thenOnQueue.Store(onQueue.Load() > 0)
	}).Finally(func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callbacks did not run")
	}
	assert.True(t, thenOnQueue.Load())
}

func TestWS_URLIsConcatenated(t *testing.T) {
	api := New("https://api.example.com/v1", WithTransport(http.TransportFunc(nil)))
	assert.Equal(t, "https://api.example.com/v1/users", api.GetRequest("/users", nil).URL())
	assert.Equal(t, "https://api.example.com/v1users", api.GetRequest("users", nil).URL())
}

func TestWS_Multipart(t *testing.T) {
	srv, api := newBackend(t)
	srv.JSON("POST", "/upload", 201, `{"stored":true}`)
	srv.JSON("PUT", "/upload", 200, `{"stored":true}`)
	ctx := context.Background()

	_, err := api.PostMultipart(ctx, "/upload", newParams(t, "title", "cat"), "file", []byte("png-bytes"), "cat.png", "image/png").Await(ctx)
	require.NoError(t, err)
	last, _ := srv.LastRequest()
	assert.True(t, strings.HasPrefix(last.Headers.Get("Content-Type"), "multipart/form-data"))
	assert.Contains(t, string(last.Body), "png-bytes")
	assert.Contains(t, string(last.Body), `filename="cat.png"`)
	assert.Contains(t, string(last.Body), "cat")

	_, err = api.PutMultipart(ctx, "/upload", nil, "file", []byte("x"), "x.bin", "application/octet-stream").Await(ctx)
	require.NoError(t, err)
	last, _ = srv.LastRequest()
	assert.Equal(t, "PUT", last.Method)
}

func TestGetCollection(t *testing.T) {
	type user struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	srv, api := newBackend(t, WithCollectionKeyPath("data"))
	srv.JSON("GET", "/users", 200, `{"data":[{"id":1,"name":"ada"},{"id":2,"name":"alan"}]}`)
	ctx := context.Background()

	users, err := GetCollection[user](ctx, api, "/users", nil).Await(ctx)

	require.NoError(t, err)
	assert.Equal(t, []user{{1, "ada"}, {2, "alan"}}, users)
}

func newTestServer(t *testing.T, srv *mock.Server) string {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts.URL
}
