package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/asyncview/internal/api/shared"
	"github.com/phrazzld/asyncview/internal/domain"
	"github.com/phrazzld/asyncview/internal/jobs"
	"github.com/phrazzld/asyncview/internal/platform/logger"
	"github.com/phrazzld/asyncview/internal/service/auth"
	"github.com/phrazzld/asyncview/internal/store"
	"github.com/phrazzld/asyncview/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"nil error", nil, http.StatusInternalServerError},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"wrapped expired token", fmt.Errorf("authenticate: %w", auth.ErrExpiredToken), http.StatusUnauthorized},
		{"anonymous on owned handler", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"access denied", domain.ErrAccessDenied, http.StatusForbidden},
		{"upstream failure", fmt.Errorf("%w: boom", domain.ErrUpstreamFailure), http.StatusInternalServerError},
		{"invariant violation", domain.ErrInvariantViolation, http.StatusInternalServerError},
		{"configuration", domain.ErrConfiguration, http.StatusInternalServerError},
		{"unknown job", fmt.Errorf("%w: %w", domain.ErrNotFound, task.ErrTaskNotFound), http.StatusBadRequest},
		{"unknown artifact", store.ErrArtifactNotFound, http.StatusBadRequest},
		{"malformed id", domain.ErrInvalidID, http.StatusBadRequest},
		{"empty result", domain.ErrEmptyResult, http.StatusBadRequest},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest},
		{"queue full", task.ErrQueueFull, http.StatusServiceUnavailable},
		{"queue closed", task.ErrQueueClosed, http.StatusServiceUnavailable},
		{"await timeout", jobs.ErrAwaitTimeout, http.StatusGatewayTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown error", errors.New("unknown error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expectedStatus, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		err             error
		expectedMessage string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"invalid token", auth.ErrInvalidToken, "Invalid token"},
		{"expired token", fmt.Errorf("failed due to: %w", auth.ErrExpiredToken), "Token expired"},
		{"access denied", domain.ErrAccessDenied, "You do not have permission to access this result"},
		{"upstream failure", fmt.Errorf("%w: panic in renderer", domain.ErrUpstreamFailure), "The operation failed"},
		{"unknown job", domain.ErrNotFound, "Unknown task or result"},
		{"queue full", task.ErrQueueFull, "Too many pending tasks, try again later"},
		{
			"database error",
			errors.New("database error: postgres://user:pw@db:5432/app connection refused"),
			"An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			message := GetSafeErrorMessage(tt.err)
			assert.Equal(t, tt.expectedMessage, message)
			if tt.err != nil {
				assert.NotContains(t, message, tt.err.Error())
			}
		})
	}
}

func TestHandleAPIError(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?task_id=x", nil)
	req = req.WithContext(shared.SetTraceID(req.Context()))
	rr := httptest.NewRecorder()

	HandleAPIError(rr, req, fmt.Errorf("%w: renderer said password=hunter22", domain.ErrUpstreamFailure), "")

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body shared.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "The operation failed", body.Error)
	assert.NotEmpty(t, body.TraceID)

	rr = httptest.NewRecorder()
	HandleAPIError(rr, req, domain.ErrValidation, "rows must be positive")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "rows must be positive", body.Error)
}

func TestHandleAPIError_LogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		level string
	}{
		{name: "access denied", err: domain.ErrAccessDenied, level: "level=WARN"},
		{name: "anonymous owner required", err: domain.ErrUnauthorized, level: "level=WARN"},
		{name: "not found", err: domain.ErrNotFound, level: "level=DEBUG"},
		{name: "upstream failure", err: domain.ErrUpstreamFailure, level: "level=ERROR"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(logger.WithLogger(req.Context(), l))

			HandleAPIError(httptest.NewRecorder(), req, tt.err, "")

			assert.Contains(t, buf.String(), tt.level)
		})
	}
}
