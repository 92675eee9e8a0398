package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/AGO523/node-news-notification/internal/metrics"
	"github.com/AGO523/node-news-notification/internal/models"
)

const (
	streamName     = "NOTIFY_DLQ"
	subjectPrefix  = "notify.dlq."
	subjectPattern = "notify.dlq.>"
)

// JetStreamQueue writes failed messages to NATS JetStream so the DLQ is
// shared across service instances.
type JetStreamQueue struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

// NewJetStreamQueue connects to NATS and ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, natsURL string) (*JetStreamQueue, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPattern},
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	return &JetStreamQueue{conn: conn, js: js, stream: stream}, nil
}

// Write publishes one entry under notify.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, msg models.PushMessage, cause error, reason string) error {
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

	if _, err := q.js.Publish(ctx, subjectPrefix+reason, data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	metrics.DLQWrites.WithLabelValues(reason).Inc()
	return nil
}

// List fetches up to limit entries through an ephemeral consumer. The
// service never reads its own dead letters; List exists for operator
// tooling inspecting the shared queue, the counterpart of FileQueue.List
// for single-instance deployments. It needs a live NATS server, so it has
// no unit coverage.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subjectPattern,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var entries []FailedMessage
	for msg := range msgs.Messages() {
		var entry FailedMessage
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, msgs.Error()
}

// Close drains the NATS connection.
func (q *JetStreamQueue) Close() error {
	q.conn.Close()
	return nil
}
