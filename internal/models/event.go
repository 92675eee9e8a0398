package models

// PushMessage is one entry of an inbound push batch. Data carries the
// base64-encoded event payload exactly as delivered by the upstream
// publish/subscribe system.
type PushMessage struct {
	MessageID  string            `json:"messageId,omitempty"`
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// PushRequest is the envelope of a POST /publish request.
type PushRequest struct {
	Messages []PushMessage `json:"messages"`
}

// NewsEvent is the decoded form of a push message payload. Every field is
// optional at decode time; downstream stages treat absent fields defensively.
type NewsEvent struct {
	Email          string `json:"email"`
	UUID           string `json:"uuid"`
	RepositoryName string `json:"repositoryName"`
	Topic          string `json:"topic"`
	Prompt         string `json:"prompt"`
}

// Notification record statuses.
const (
	StatusAccepted  = "accepted"
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// NotificationRecord is the persisted lifecycle record of one event. The
// store client is the only writer once the record is handed off.
type NotificationRecord struct {
	Email          string  `json:"email"`
	UUID           string  `json:"uuid"`
	RepositoryName string  `json:"repository_name"`
	Topic          string  `json:"topic"`
	Summary        *string `json:"summary"`
	Status         string  `json:"status"`
	CreatedAt      int64   `json:"created_at"`
}

// BatchOutcome summarizes one batch. Counts are per message: Processed
// covers events whose accepted record was persisted, Skipped covers
// authorization denials, Failed covers decode and persistence failures.
type BatchOutcome struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// PublishResponse is the coarse acknowledgment returned to the caller.
// Per-event outcomes are deliberately not reported synchronously.
type PublishResponse struct {
	Status    string `json:"status"`
	Received  int    `json:"received"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}
