package mock

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_CannedResponse(t *testing.T) {
	srv := NewServer()
	srv.JSON("GET", "/users", 200, `[{"id":1}]`)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	status, body := get(t, ts.URL+"/users")
	assert.Equal(t, 200, status)
	assert.Equal(t, `[{"id":1}]`, body)
}

func TestServer_PathParams(t *testing.T) {
	srv := NewServer()
	srv.JSON("GET", "/users/{{id}}", 200, `{"id":"{{id}}"}`)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, body := get(t, ts.URL+"/users/42/")
	assert.Equal(t, `{"id":"42"}`, body)
}

func TestServer_NotFound(t *testing.T) {
	ts := httptest.NewServer(NewServer())
	defer ts.Close()

	status, _ := get(t, ts.URL+"/missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoute_FailFirst(t *testing.T) {
	srv := NewServer()
	route := srv.JSON("GET", "/flaky", 200, `{"ok":true}`).
		FailFirst(2, Response{StatusCode: 503, Body: `{"error":"busy"}`})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	s1, _ := get(t, ts.URL+"/flaky")
	s2, _ := get(t, ts.URL+"/flaky")
	s3, body := get(t, ts.URL+"/flaky")

	assert.Equal(t, []int{503, 503, 200}, []int{s1, s2, s3})
	assert.Equal(t, `{"ok":true}`, body)
	assert.Equal(t, 3, route.Hits())
}

func TestServer_RecordsRequests(t *testing.T) {
	srv := NewServer()
	srv.JSON("POST", "/items", 201, `{}`)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, err := http.NewRequest("POST", ts.URL+"/items?x=1", strings.NewReader("name=a"))
	require.NoError(t, err)
	req.Header.Set("X-Test", "yes")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	last, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "POST", last.Method)
	assert.Equal(t, "/items", last.Path)
	assert.Equal(t, "1", last.Query.Get("x"))
	assert.Equal(t, "yes", last.Headers.Get("X-Test"))
	assert.Equal(t, "name=a", string(last.Body))
	assert.Len(t, srv.Requests(), 1)
}

func TestServer_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	content := `routes:
  - name: list users
    method: GET
    path: /users
    response:
      status: 200
      body: '{"data":[]}'
  - method: POST
    path: /users
    failFirst: 1
    response:
      status: 201
      body: '{"id":1}'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	srv := NewServer()
	require.NoError(t, srv.LoadFile(path))
	routes := srv.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "list users", routes[0].Name)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/users", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_LoadFileRejectsIncompleteRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"routes":[{"path":"/x"}]}`), 0644))

	err := NewServer().LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method and path are required")
}
