// Package dlq records messages the pipeline could not process so they can be
// inspected or replayed later.
package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AGO523/node-news-notification/internal/metrics"
	"github.com/AGO523/node-news-notification/internal/models"
)

// Failure reasons recorded with each entry.
const (
	ReasonDecode      = "decode"
	ReasonEnrichment  = "enrichment"
	ReasonPersistence = "persistence"
)

// FailedMessage is one dead-lettered entry.
type FailedMessage struct {
	Timestamp time.Time          `json:"timestamp"`
	Message   models.PushMessage `json:"message"`
	Error     string             `json:"error"`
	Reason    string             `json:"reason"`
}

// Writer records a failed message. Implementations must be safe for
// concurrent use.
type Writer interface {
	Write(ctx context.Context, msg models.PushMessage, cause error, reason string) error
	Close() error
}

// FileQueue appends failed messages to an NDJSON file. Single instance only;
// use the JetStream backend when running multiple replicas.
type FileQueue struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileQueue opens (or creates) the queue file under basePath.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	path := filepath.Join(basePath, "failed.ndjson")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dlq file: %w", err)
	}

	return &FileQueue{file: file}, nil
}

// Write appends one entry.
func (q *FileQueue) Write(ctx context.Context, msg models.PushMessage, cause error, reason string) error {
	entry := FailedMessage{
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Error:     cause.Error(),
		Reason:    reason,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	metrics.DLQWrites.WithLabelValues(reason).Inc()
	return nil
}

// List reads back up to limit entries, oldest first.
func (q *FileQueue) List(limit int) ([]FailedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	q.mu.Lock()
	path := q.file.Name()
	q.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dlq file: %w", err)
	}
	defer file.Close()

	var entries []FailedMessage
	scanner := bufio.NewScanner(file)
	for scanner.Scan() && len(entries) < limit {
		var entry FailedMessage
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

// Close closes the underlying file.
func (q *FileQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.file.Close()
}
