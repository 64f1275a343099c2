package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		status    int
		wantPath  string
		wantLevel string
	}{
		{"plain", "/admin/campaigns", http.StatusOK, "/admin/campaigns", "INFO"},
		{"query kept", "/admin/audit-logs?page=2", http.StatusOK, "/admin/audit-logs?page=2", "INFO"},
		{"email redacted", "/admin/audit-logs?userEmail=jane@example.com", http.StatusOK, "/admin/audit-logs?[REDACTED]", "INFO"},
		{"client error", "/admin/users/x", http.StatusNotFound, "/admin/users/x", "WARN"},
		{"server error", "/admin/users/x", http.StatusInternalServerError, "/admin/users/x", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := SecureLogger(logger, "production")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.wantPath, line["path"])
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, float64(tt.status), line["status"])
			assert.Equal(t, "[REDACTED]", line["remote_addr"])
		})
	}
}
