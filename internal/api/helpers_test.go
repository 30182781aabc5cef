package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/jobs"
	"github.com/phrazzld/asyncview/internal/task"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAdapter wires a real runner over a memory store.
func newAdapter(t *testing.T) *jobs.Adapter {
	t.Helper()
	cfg := task.DefaultTaskRunnerConfig()
	cfg.WorkerCount = 2
	cfg.QueueSize = 10
	runner := task.NewTaskRunner(task.NewMemoryTaskStore(), cfg, discardLogger())
	require.NoError(t, runner.Start())
	t.Cleanup(runner.Stop)

	a, err := jobs.NewAdapter(runner, nil, jobs.Config{
		AwaitTimeout: 5 * time.Second,
		AwaitPoll:    5 * time.Millisecond,
	}, discardLogger())
	require.NoError(t, err)
	return a
}

// gatedOperation returns an operation whose producer blocks until release
// is called, so tests can observe the pending state.
func gatedOperation(t *testing.T, name string, file domain.File) (*asyncop.Operation, func()) {
	t.Helper()
	gate := make(chan struct{})
	op, err := asyncop.New(name, asyncop.ProducerFunc(func(context.Context, json.RawMessage) (*domain.File, error) {
		<-gate
		f := file
		return &f, nil
	}), nil, asyncop.StaticSettings{})
	require.NoError(t, err)

	released := false
	release := func() {
		if !released {
			released = true
			close(gate)
		}
	}
	t.Cleanup(release)
	return op, release
}

func staticOperation(t *testing.T, name string, file *domain.File, err error) *asyncop.Operation {
	t.Helper()
	op, opErr := asyncop.New(name, asyncop.ProducerFunc(func(context.Context, json.RawMessage) (*domain.File, error) {
		return file, err
	}), nil, asyncop.StaticSettings{})
	require.NoError(t, opErr)
	return op
}

// get performs a GET against h, optionally as principal.
func get(h http.Handler, target string, principal *uuid.UUID) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if principal != nil {
		req = req.WithContext(shared.WithPrincipal(req.Context(), *principal))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

// pollReady reports whether rr is a successful poll answer with ready set.
func pollReady(rr *httptest.ResponseRecorder) bool {
	if rr.Code != http.StatusOK {
		return false
	}
	var body struct {
		Ready bool `json:"ready"`
	}
	return json.Unmarshal(rr.Body.Bytes(), &body) == nil && body.Ready
}

// mockJobs implements api.Jobs with overridable behavior.
type mockJobs struct {
	SubmitFn   func(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (uuid.UUID, error)
	IsReadyFn  func(ctx context.Context, jobID uuid.UUID) (bool, error)
	FetchFn    func(ctx context.Context, jobID uuid.UUID, await bool) (*domain.OpenedResult, error)
	RunEagerFn func(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (*domain.OpenedResult, error)
}

func (m *mockJobs) Submit(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (uuid.UUID, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, op, ownerID, args)
	}
	return uuid.New(), nil
}

func (m *mockJobs) IsReady(ctx context.Context, jobID uuid.UUID) (bool, error) {
	if m.IsReadyFn != nil {
		return m.IsReadyFn(ctx, jobID)
	}
	return false, nil
}

func (m *mockJobs) Fetch(ctx context.Context, jobID uuid.UUID, await bool) (*domain.OpenedResult, error) {
	if m.FetchFn != nil {
		return m.FetchFn(ctx, jobID, await)
	}
	return nil, jobs.ErrNotReady
}

func (m *mockJobs) RunEager(ctx context.Context, op *asyncop.Operation, ownerID *uuid.UUID, args any) (*domain.OpenedResult, error) {
	if m.RunEagerFn != nil {
		return m.RunEagerFn(ctx, op, ownerID, args)
	}
	return nil, domain.ErrEmptyResult
}
