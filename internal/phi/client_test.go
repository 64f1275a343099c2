package phi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_Score(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/score", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Text == "patient MRN 12345" {
			json.NewEncoder(w).Encode(Result{ContainsPHI: true, Score: 18})
			return
		}
		json.NewEncoder(w).Encode(Result{})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", time.Second, testLogger())

	result, err := client.Score(context.Background(), "patient MRN 12345")
	require.NoError(t, err)
	assert.True(t, result.ContainsPHI)
	assert.Equal(t, 18, result.Score)

	result, err = client.Score(context.Background(), "billing dispute")
	require.NoError(t, err)
	assert.False(t, result.ContainsPHI)
	assert.Zero(t, result.Score)
}

func TestClient_Score_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model offline", http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
		{
			name: "negative score",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"containsPhi":false,"phiScore":-1}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewClient(server.URL, time.Second, testLogger()).Score(context.Background(), "text")
			assert.Error(t, err)
		})
	}
}

func TestNoopScorer(t *testing.T) {
	result, err := NoopScorer{}.Score(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}
