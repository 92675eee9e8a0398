// Package enrich calls an external generative-text API to produce event
// summaries.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AGO523/node-news-notification/internal/metrics"
)

var (
	// ErrNotConfigured indicates the API key is missing.
	ErrNotConfigured = errors.New("enrichment client not configured")

	// ErrUnavailable indicates the remote call failed (transport error or
	// non-2xx response).
	ErrUnavailable = errors.New("enrichment service unavailable")

	// ErrEmptyResponse indicates the API answered without any candidate text.
	ErrEmptyResponse = errors.New("enrichment response contained no text")
)

// Client talks to a generateContent-style text API. A single attempt per
// call; retry policy is the caller's concern.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New constructs a client. baseURL may be overridden for tests; the empty
// string selects the public endpoint.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Summarize sends the prompt and returns the first candidate's text
// verbatim.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.apiKey == "" {
		return "", ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	}()

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("X-Goog-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.EnrichmentErrors.Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EnrichmentErrors.Inc()
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.EnrichmentErrors.Inc()
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		metrics.EnrichmentErrors.Inc()
		return "", ErrEmptyResponse
	}

	return result.Candidates[0].Content.Parts[0].Text, nil
}
