package http_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/scribe/internal/models"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "Test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "Test message", resp.Message)
	assert.Empty(t, resp.Details)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{"decision": "granted"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"decision":"granted"}`, w.Body.String())
}

func TestWriteDomainError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"validation", fmt.Errorf("%w: must be at least 5 characters", models.ErrInvalidReason), http.StatusBadRequest, "invalid_reason"},
		{"conflict", models.ErrDuplicateName, http.StatusConflict, "duplicate_name"},
		{"stale version", models.ErrConflict, http.StatusConflict, "conflict"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"tombstone", models.ErrAlreadyDeleted, http.StatusConflict, "already_deleted"},
		{"forbidden", models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"constraint violation", fmt.Errorf("%w: campaigns_trial_days_check", models.ErrConstraintViolation), http.StatusBadRequest, "constraint_violation"},
		{"unclassified", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			pkghttp.WriteDomainError(w, logger, tt.err)

			assert.Equal(t, tt.wantCode, w.Code)
			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Error)
			assert.NotContains(t, resp.Message, "connection refused")
		})
	}
}

func TestWriteDomainError_KeepsDetail(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteDomainError(w, slog.New(slog.NewTextHandler(io.Discard, nil)),
		fmt.Errorf("%w: must be between 1 and 90 days", models.ErrInvalidDuration))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "between 1 and 90 days")
}

func TestCommonWriters(t *testing.T) {
	tests := []struct {
		write func(http.ResponseWriter, string)
		code  int
		err   string
	}{
		{pkghttp.WriteBadRequest, 400, "bad_request"},
		{pkghttp.WriteUnauthorized, 401, "unauthorized"},
		{pkghttp.WriteForbidden, 403, "forbidden"},
		{pkghttp.WriteNotFound, 404, "not_found"},
		{pkghttp.WriteTooManyRequests, 429, "rate_limit_exceeded"},
		{pkghttp.WriteInternalError, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "msg")
			assert.Equal(t, tt.code, w.Code)

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.err, resp.Error)
		})
	}
}
