// Package store persists notification records through a remote SQL-over-HTTP
// endpoint. Every call is one parameterized statement; caller-supplied values
// are always bound parameters, never interpolated into the statement text.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AGO523/node-news-notification/internal/metrics"
	"github.com/AGO523/node-news-notification/internal/models"
)

// ErrNotConfigured indicates the endpoint URL or token is missing. This is a
// configuration fault, distinct from a transient remote failure.
var ErrNotConfigured = errors.New("store client not configured")

// RemoteError is a non-success response from the remote SQL executor. The
// response body is kept for diagnostics.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("store response status %d: %s", e.StatusCode, e.Body)
}

const (
	insertSQL        = "INSERT INTO notifications (email, uuid, repository_name, topic, summary, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	updateSummarySQL = "UPDATE notifications SET summary = ?, status = ? WHERE uuid = ?"
	updateStatusSQL  = "UPDATE notifications SET status = ? WHERE uuid = ?"
)

// Client executes parameterized statements against the remote store.
type Client struct {
	endpoint   string
	token      string
	apiKey     string
	httpClient *http.Client
}

// New constructs a client. apiKey is an optional secondary credential sent
// as an X-Api-Key header when present.
func New(endpoint, token, apiKey string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type statement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// Insert writes a new lifecycle record.
func (c *Client) Insert(ctx context.Context, record *models.NotificationRecord) error {
	var summary any
	if record.Summary != nil {
		summary = *record.Summary
	}

	return c.execute(ctx, statement{
		SQL: insertSQL,
		Params: []any{
			record.Email,
			record.UUID,
			record.RepositoryName,
			record.Topic,
			summary,
			record.Status,
			record.CreatedAt,
		},
	})
}

// UpdateSummary sets the summary and marks the record completed. The update
// is keyed by uuid and touches no other fields; whether a matching record
// exists is delegated to the remote store.
func (c *Client) UpdateSummary(ctx context.Context, uuid, summary string) error {
	return c.execute(ctx, statement{
		SQL:    updateSummarySQL,
		Params: []any{summary, models.StatusCompleted, uuid},
	})
}

// UpdateStatus sets only the status of the record with the given uuid.
func (c *Client) UpdateStatus(ctx context.Context, uuid, status string) error {
	return c.execute(ctx, statement{
		SQL:    updateStatusSQL,
		Params: []any{status, uuid},
	})
}

func (c *Client) execute(ctx context.Context, stmt statement) error {
	if c == nil || c.endpoint == "" || c.token == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		metrics.StoreDuration.Observe(time.Since(start).Seconds())
	}()

	bodyBytes, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("marshal statement: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.token)
	if c.apiKey != "" {
		request.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.StoreErrors.Inc()
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.StoreErrors.Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return nil
}
