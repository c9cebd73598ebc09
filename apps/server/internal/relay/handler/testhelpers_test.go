package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/coverbot/apps/server/internal/platform/validation"
	"github.com/tilsley/coverbot/apps/server/internal/relay"
	"github.com/tilsley/coverbot/apps/server/internal/relay/adapters/github"
	"github.com/tilsley/coverbot/apps/server/internal/relay/adapters/greptile"
	"github.com/tilsley/coverbot/apps/server/internal/relay/handler"
	"github.com/tilsley/coverbot/pkg/mockgithub"
	"github.com/tilsley/coverbot/schemas"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ─── Test server builder ──────────────────────────────────────────────────────

// testServer wires the real adapters to one in-process mock that plays both
// upstreams.
type testServer struct {
	router   *gin.Engine
	upstream *mockgithub.Server
	url      string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithOptions(t, relay.Options{}, false)
}

func newTestServerWithValidation(t *testing.T) *testServer {
	return newTestServerWithOptions(t, relay.Options{}, true)
}

func newTestServerWithOptions(t *testing.T, opts relay.Options, validate bool) *testServer {
	t.Helper()
	m := mockgithub.New(quietLogger(), "")
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)
	m.SetBaseURL(srv.URL)
	m.Seed("octo", "cat", "main", map[string]string{"README.md": "# cat", "main.go": "package main"})

	svc := relay.NewService(
		greptile.NewClient(srv.URL, srv.Client()),
		github.NewProvider(srv.URL, nil),
		opts,
	)

	r := gin.New()
	r.Use(handler.CORS(), handler.RequestID(quietLogger()))
	if validate {
		mw, err := validation.New(schemas.OpenAPISpec)
		require.NoError(t, err)
		r.Use(mw)
	}
	handler.RegisterRoutes(r, svc, quietLogger())

	return &testServer{router: r, upstream: m, url: srv.URL}
}

func (ts *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type obj = map[string]any

func indexBody(repo string) obj {
	return obj{
		"apiKey":       "key",
		"githubToken":  "tok",
		"githubRepo":   repo,
		"githubBranch": "main",
	}
}

func modifyBody(newBranch string) obj {
	return obj{
		"githubToken":   "tok",
		"githubRepo":    "octo/cat",
		"githubBranch":  "main",
		"newBranch":     newBranch,
		"commitMessage": "add tests",
		"fileChanges": []obj{
			{"filePath": "a.txt", "newContent": "hello"},
		},
	}
}
