package api_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/asyncview/internal/api"
	"github.com/phrazzld/asyncview/internal/asyncop"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textFile(body string) domain.File {
	return domain.File{Content: []byte(body), Filename: "example-text-file.txt", Mimetype: "text/plain"}
}

func newDownloadHandler(t *testing.T, desc api.DownloadDescriptor, jobs api.Jobs) *api.DownloadHandler {
	t.Helper()
	h, err := api.NewDownloadHandler(desc, jobs, discardLogger())
	require.NoError(t, err)
	return h
}

func TestNewDownloadHandler_Configuration(t *testing.T) {
	t.Parallel()

	_, err := api.NewDownloadHandler(api.DownloadDescriptor{}, &mockJobs{}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	op := staticOperation(t, "download", &domain.File{Content: []byte("x")}, nil)
	_, err = api.NewDownloadHandler(api.DownloadDescriptor{Operation: op}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestDownloadHandler_PollingLifecycle(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("This file just contains this same line N times.\n", 4)
	op, release := gatedOperation(t, "example_download_task", textFile(content))
	h := newDownloadHandler(t, api.DownloadDescriptor{Operation: op}, newAdapter(t))

	rr := get(h, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	submitted := decode[api.SubmitResponse](t, rr)
	assert.False(t, submitted.Ready)
	_, err := uuid.Parse(submitted.TaskID)
	require.NoError(t, err)

	target := "/?task_id=" + submitted.TaskID
	rr = get(h, target, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, api.ReadyResponse{Ready: false}, decode[api.ReadyResponse](t, rr))

	release()
	require.Eventually(t, func() bool {
		return pollReady(get(h, target, nil))
	}, 2*time.Second, 10*time.Millisecond)

	rr = get(h, target+"&download=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=example-text-file.txt", rr.Header().Get("Content-Disposition"))
	assert.Equal(t, content, rr.Body.String())
}

func TestDownloadHandler_DownloadAwaitsUnfinishedJob(t *testing.T) {
	t.Parallel()

	op, release := gatedOperation(t, "slow_download", textFile("late"))
	h := newDownloadHandler(t, api.DownloadDescriptor{Operation: op}, newAdapter(t))

	submitted := decode[api.SubmitResponse](t, get(h, "/", nil))

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	rr := get(h, "/?task_id="+submitted.TaskID+"&download=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "late", rr.Body.String())
}

func TestDownloadHandler_Setup(t *testing.T) {
	t.Parallel()

	var gotArgs any
	h := newDownloadHandler(t, api.DownloadDescriptor{
		Operation: staticOperation(t, "download", &domain.File{Content: []byte("x")}, nil),
		Setup: func(r *http.Request) (any, error) {
			if r.URL.Query().Get("rows") == "" {
				return nil, domain.ErrValidation
			}
			return map[string]string{"rows": r.URL.Query().Get("rows")}, nil
		},
	}, &mockJobs{
		SubmitFn: func(_ context.Context, _ *asyncop.Operation, _ *uuid.UUID, args any) (uuid.UUID, error) {
			gotArgs = args
			return uuid.New(), nil
		},
	})

	assert.Equal(t, http.StatusBadRequest, get(h, "/", nil).Code)
	assert.Nil(t, gotArgs, "a failed setup does not submit")

	rr := get(h, "/?rows=7", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"rows": "7"}, gotArgs)
}

func TestDownloadHandler_Eager(t *testing.T) {
	t.Parallel()

	h := newDownloadHandler(t, api.DownloadDescriptor{
		Operation: staticOperation(t, "download", &domain.File{Content: []byte("now"), Filename: "now.txt"}, nil),
		Eager:     true,
	}, newAdapter(t))

	rr := get(h, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=now.txt", rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "now", rr.Body.String())
}

func TestDownloadHandler_EmptyContentIsServed(t *testing.T) {
	t.Parallel()

	h := newDownloadHandler(t, api.DownloadDescriptor{
		Operation: staticOperation(t, "download", &domain.File{Content: []byte("x")}, nil),
	}, &mockJobs{
		FetchFn: func(context.Context, uuid.UUID, bool) (*domain.OpenedResult, error) {
			return &domain.OpenedResult{Filename: "empty.txt", Mimetype: "text/plain"}, nil
		},
	})

	rr := get(h, "/?task_id="+uuid.NewString()+"&download=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestDownloadHandler_Ownership(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	other := uuid.New()
	h := newDownloadHandler(t, api.DownloadDescriptor{
		Operation: staticOperation(t, "download", &domain.File{Content: []byte("x")}, nil),
	}, &mockJobs{
		FetchFn: func(context.Context, uuid.UUID, bool) (*domain.OpenedResult, error) {
			return &domain.OpenedResult{
				Content:  []byte("secret rows"),
				OwnerID:  &owner,
				Filename: "rows.txt",
				Mimetype: "text/plain",
			}, nil
		},
	})
	target := "/?task_id=" + uuid.NewString() + "&download=true"

	rr := get(h, target, &other)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret rows")
	assert.Equal(t, http.StatusForbidden, get(h, target, nil).Code)

	rr = get(h, target, &owner)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "secret rows", rr.Body.String())
}

func TestDownloadHandler_OwnedJobEndToEnd(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	other := uuid.New()
	h := newDownloadHandler(t, api.DownloadDescriptor{
		Operation:    staticOperation(t, "download", &domain.File{Content: []byte("rows"), Filename: "rows.txt"}, nil),
		RequireOwner: true,
	}, newAdapter(t))

	assert.Equal(t, http.StatusUnauthorized, get(h, "/", nil).Code)

	submitted := decode[api.SubmitResponse](t, get(h, "/", &owner))
	target := "/?task_id=" + submitted.TaskID + "&download=true"

	assert.Equal(t, http.StatusForbidden, get(h, target, &other).Code)

	rr := get(h, target, &owner)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "rows", rr.Body.String())
}

func TestDownloadHandler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		jobs   *mockJobs
		target string
		status int
	}{
		{
			name:   "malformed task id",
			jobs:   &mockJobs{},
			target: "/?task_id=123",
			status: http.StatusBadRequest,
		},
		{
			name: "unknown task id",
			jobs: &mockJobs{
				IsReadyFn: func(context.Context, uuid.UUID) (bool, error) {
					return false, domain.ErrNotFound
				},
			},
			target: "/?task_id=" + uuid.NewString(),
			status: http.StatusBadRequest,
		},
		{
			name: "failed operation",
			jobs: &mockJobs{
				FetchFn: func(context.Context, uuid.UUID, bool) (*domain.OpenedResult, error) {
					return nil, errors.Join(domain.ErrUpstreamFailure, errors.New("boom"))
				},
			},
			target: "/?task_id=" + uuid.NewString() + "&download=true",
			status: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newDownloadHandler(t, api.DownloadDescriptor{
				Operation: staticOperation(t, "download", &domain.File{Content: []byte("x")}, nil),
			}, tc.jobs)
			assert.Equal(t, tc.status, get(h, tc.target, nil).Code)
		})
	}
}
