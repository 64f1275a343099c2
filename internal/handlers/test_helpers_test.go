package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/scribe/internal/auth"
	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/services"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer wires the real services over the in-memory store
type testServer struct {
	store    *services.MemStore
	notifier *services.MockNotifier
	router   chi.Router
	adminID  string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, compliance ComplianceService) *testServer {
	t.Helper()
	logger := discardLogger()
	store := services.NewMemStore()
	notifier := &services.MockNotifier{}
	cfg := config.DefaultLifecycleConfig()
	audit := services.NewAuditLogger(&services.MockPHIScorer{}, logger)

	ipConfig, err := pkghttp.NewIPConfig(nil)
	require.NoError(t, err)

	router := chi.NewRouter()
	NewAdminUserHandler(
		services.NewLifecycleService(store, audit, notifier, cfg, logger),
		services.NewTrialService(store, audit, cfg, logger),
		ipConfig, logger,
	).RegisterRoutes(router)
	NewCampaignHandler(services.NewCampaignService(store, audit, logger), ipConfig, logger).RegisterRoutes(router)
	if compliance != nil {
		NewAuditHandler(compliance, logger).RegisterRoutes(router)
	}

	adminID := store.AddUser(models.UserAccount{Email: "admin@example.com", Role: models.RoleAdmin})
	return &testServer{store: store, notifier: notifier, router: router, adminID: adminID}
}

// do sends a request as the given user and returns the recorder
func (s *testServer) do(t *testing.T, method, target, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := NewTestRequest(t, method, target, body)
	req = WithAuthContext(req, userID)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds token claims to the request context
func WithAuthContext(req *http.Request, userID string) *http.Request {
	claims := &auth.TokenClaims{UserID: userID, Type: "access"}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	require.Equal(t, expectedStatus, w.Code, "Response status mismatch: %s", w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}
