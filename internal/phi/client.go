// Package phi talks to the external PHI detection service. The scoring model
// lives there; this package only carries text out and a score back.
package phi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Result is the scorer's verdict for one piece of text.
type Result struct {
	ContainsPHI bool `json:"containsPhi"`
	Score       int  `json:"phiScore"`
}

// Client calls the scorer over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client posting to baseURL + "/score".
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/score",
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

// Score asks the scorer whether text contains PHI.
func (c *Client) Score(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode phi request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build phi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("phi scorer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		c.logger.Warn("phi scorer returned error status",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		return Result{}, fmt.Errorf("phi scorer returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("failed to decode phi response: %w", err)
	}
	if result.Score < 0 {
		return Result{}, fmt.Errorf("phi scorer returned negative score %d", result.Score)
	}

	return result, nil
}

// NoopScorer reports every text as PHI-free. Used when no scorer is configured.
type NoopScorer struct{}

func (NoopScorer) Score(context.Context, string) (Result, error) {
	return Result{}, nil
}
