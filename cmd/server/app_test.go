package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/config"
	"github.com/phrazzld/asyncview/internal/example"
	"github.com/phrazzld/asyncview/internal/platform/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisaverylongsecretkeyfortestingpurposes"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, LogLevel: "info"},
		Database: config.DatabaseConfig{Driver: driverSQLite, URL: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:            testSecret,
			TokenLifetimeMinutes: 60,
			TokenCookie:          "asyncview_token",
		},
		Async: config.AsyncConfig{
			DurableStorage:        true,
			DefaultTTLMs:          600000,
			InitialPollIntervalMs: 20000,
			PollIntervalMs:        5000,
		},
		Task: config.TaskConfig{
			WorkerCount:            2,
			QueueSize:              10,
			StuckTaskAgeMinutes:    30,
			AwaitTimeoutSeconds:    5,
			ResultRetentionMinutes: 60,
			AwaitPollMs:            5,
			Backend:                backendMemory,
		},
	}
}

// newTestServer builds the whole application over an in-memory SQLite
// database and serves its router.
func newTestServer(t *testing.T, mutate func(*config.Config)) (*application, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := sqlite.Open(ctx, cfg.Database.URL)
	require.NoError(t, err)
	require.NoError(t, migrate(ctx, driverSQLite, db, "up", logger))

	app, err := newApplication(ctx, config.NewLive(cfg), logger, db)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)

	router, err := app.setupRouter()
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return app, srv
}

func doGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

// awaitReady polls url until the job reports ready.
func awaitReady(t *testing.T, url, token string) map[string]any {
	t.Helper()
	var body map[string]any
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		body = nil
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		ready, _ := body["ready"].(bool)
		return ready
	}, 5*time.Second, 10*time.Millisecond)
	return body
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t, nil)

	resp := doGet(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", readBody(t, resp))
}

func TestExampleDownload(t *testing.T) {
	t.Parallel()

	backends := []string{backendMemory, backendDatabase}
	for _, backend := range backends {
		backend := backend
		t.Run(backend, func(t *testing.T) {
			t.Parallel()
			_, srv := newTestServer(t, func(c *config.Config) { c.Task.Backend = backend })

			resp := doGet(t, srv.URL+"/example-download/", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var submitted struct {
				TaskID string `json:"task_id"`
				Ready  bool   `json:"ready"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
			_, err := uuid.Parse(submitted.TaskID)
			require.NoError(t, err)

			pollURL := srv.URL + "/example-download/?task_id=" + submitted.TaskID
			awaitReady(t, pollURL, "")

			resp = doGet(t, pollURL+"&download=true", "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
			assert.Equal(t, "attachment; filename=example-text-file.txt", resp.Header.Get("Content-Disposition"))
			assert.Equal(t, example.FileContent(example.ExampleRowCount), readBody(t, resp))
		})
	}
}

func TestExampleView(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t, nil)

	resp := doGet(t, srv.URL+"/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := readBody(t, resp)
	assert.Contains(t, page, "<title>Loading...</title>")

	m := regexp.MustCompile(`var taskId = "([0-9a-f-]{36})"`).FindStringSubmatch(page)
	require.Len(t, m, 2)

	body := awaitReady(t, srv.URL+"/?task_id="+m[1], "")
	html, _ := body["html"].(string)
	assert.Contains(t, html, "<h1>Just an Example</h1>")
}

func TestEagerView(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t, func(c *config.Config) { c.Async.Eager = true })

	resp := doGet(t, srv.URL+"/slow/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html"))
	assert.Contains(t, readBody(t, resp), "<h1>Just an Example</h1>")
}

func TestOwnedDownload(t *testing.T) {
	t.Parallel()
	app, srv := newTestServer(t, func(c *config.Config) { c.Async.RequireOwner = true })
	ctx := context.Background()

	resp := doGet(t, srv.URL+"/example-download/", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doGet(t, srv.URL+"/example-download/", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ownerToken, err := app.jwtService.GenerateToken(ctx, uuid.New())
	require.NoError(t, err)
	otherToken, err := app.jwtService.GenerateToken(ctx, uuid.New())
	require.NoError(t, err)

	resp = doGet(t, srv.URL+"/example-download/", ownerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var submitted struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))

	downloadURL := srv.URL + "/example-download/?download=true&task_id=" + submitted.TaskID
	assert.Equal(t, http.StatusForbidden, doGet(t, downloadURL, otherToken).StatusCode)
	assert.Equal(t, http.StatusForbidden, doGet(t, downloadURL, "").StatusCode)

	resp = doGet(t, downloadURL, ownerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, example.FileContent(example.ExampleRowCount), readBody(t, resp))
}

// browserClient sends token the way a browser would: as a cookie on every
// same-origin request and never in an Authorization header.
func browserClient(t *testing.T, serverURL, token string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(serverURL)
	require.NoError(t, err)
	if token != "" {
		jar.SetCookies(u, []*http.Cookie{{Name: "asyncview_token", Value: token, Path: "/"}})
	}
	return &http.Client{Jar: jar}
}

func TestOwnedViewPolledWithCookie(t *testing.T) {
	t.Parallel()
	app, srv := newTestServer(t, func(c *config.Config) { c.Async.RequireOwner = true })
	ctx := context.Background()

	ownerToken, err := app.jwtService.GenerateToken(ctx, uuid.New())
	require.NoError(t, err)
	otherToken, err := app.jwtService.GenerateToken(ctx, uuid.New())
	require.NoError(t, err)
	owner := browserClient(t, srv.URL, ownerToken)

	resp, err := owner.Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := readBody(t, resp)
	_ = resp.Body.Close()

	m := regexp.MustCompile(`var taskId = "([0-9a-f-]{36})"`).FindStringSubmatch(page)
	require.Len(t, m, 2)
	pollURL := srv.URL + "/?task_id=" + m[1]

	var html string
	require.Eventually(t, func() bool {
		resp, err := owner.Get(pollURL)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var body struct {
			Ready bool   `json:"ready"`
			HTML  string `json:"html"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		html = body.HTML
		return body.Ready
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, html, "<h1>Just an Example</h1>")

	resp, err = browserClient(t, srv.URL, otherToken).Get(pollURL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = browserClient(t, srv.URL, "").Get(srv.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPollingErrors(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, doGet(t, srv.URL+"/?task_id=nope", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		doGet(t, srv.URL+"/example-download/?task_id="+uuid.NewString(), "").StatusCode)
}

func TestSubmissionRateLimit(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, doGet(t, srv.URL+"/example-download/", "").StatusCode)
	resp := doGet(t, srv.URL+"/example-download/", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestNewApplication_UnsupportedBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig()
	cfg.Task.Backend = "carrier-pigeon"

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = newApplication(ctx, config.NewLive(cfg), logger, db)
	assert.ErrorContains(t, err, "unsupported task backend")
}

func TestStartHTTPServer_ListenFailure(t *testing.T) {
	t.Parallel()
	app, _ := newTestServer(t, nil)

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = busy.Close() })
	app.config.Server.Port = busy.Addr().(*net.TCPAddr).Port

	err = app.startHTTPServer(context.Background(), http.NotFoundHandler())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to listen")
}

func TestStartHTTPServer_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	app, _ := newTestServer(t, func(c *config.Config) { c.Server.Port = 0 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.startHTTPServer(ctx, http.NotFoundHandler()) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
