// Package pipeline drives each push message through decode, authorization,
// enrichment and persistence, isolating per-event failures so one bad
// message does not abort the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AGO523/node-news-notification/internal/access"
	"github.com/AGO523/node-news-notification/internal/decoder"
	"github.com/AGO523/node-news-notification/internal/dlq"
	"github.com/AGO523/node-news-notification/internal/enrich"
	"github.com/AGO523/node-news-notification/internal/logging"
	"github.com/AGO523/node-news-notification/internal/metrics"
	"github.com/AGO523/node-news-notification/internal/models"
	"github.com/AGO523/node-news-notification/internal/store"
	"github.com/AGO523/node-news-notification/internal/tasks"
)

var (
	// ErrInvalidRequest indicates the request envelope had no messages array.
	ErrInvalidRequest = errors.New("request body must contain a messages array")

	// ErrForbidden indicates a strict-mode authorization denial; the batch is
	// aborted at the denied event.
	ErrForbidden = errors.New("repository not permitted")
)

// Mode selects how enrichment and the follow-up write are scheduled.
type Mode string

const (
	// ModeInline holds the HTTP response until enrichment and persistence
	// complete.
	ModeInline Mode = "inline"

	// ModeDetached returns as soon as the accepted record is persisted;
	// enrichment runs on a detached task whose outcome is only logged.
	ModeDetached Mode = "detached"
)

// ParseMode converts a configured string to a Mode, defaulting to inline.
func ParseMode(s string) Mode {
	if Mode(s) == ModeDetached {
		return ModeDetached
	}
	return ModeInline
}

// Enricher produces a text summary for a prompt.
type Enricher interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Store persists notification lifecycle records.
type Store interface {
	Insert(ctx context.Context, record *models.NotificationRecord) error
	UpdateSummary(ctx context.Context, uuid, summary string) error
	UpdateStatus(ctx context.Context, uuid, status string) error
}

// Options tune orchestrator behavior.
type Options struct {
	// Mode selects inline or detached enrichment.
	Mode Mode

	// Strict aborts the whole batch with ErrForbidden on the first
	// authorization denial instead of skipping the event.
	Strict bool

	// AcceptedRecord writes the accepted record before inline enrichment is
	// attempted. When false, inline mode writes a single record carrying the
	// final status. Detached mode always writes the accepted record first
	// because the response is returned before enrichment runs.
	AcceptedRecord bool
}

// Orchestrator is the batch pipeline driver.
type Orchestrator struct {
	policy   *access.Policy
	enricher Enricher
	store    Store
	runner   *tasks.Runner
	dlq      dlq.Writer
	logger   *logging.Logger
	opts     Options
}

// New constructs an orchestrator. runner is required for detached mode;
// dlqWriter may be nil.
func New(policy *access.Policy, enricher Enricher, st Store, runner *tasks.Runner, dlqWriter dlq.Writer, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		policy:   policy,
		enricher: enricher,
		store:    st,
		runner:   runner,
		dlq:      dlqWriter,
		logger:   logger,
		opts:     opts,
	}
}

// Process runs the batch sequentially in array order. Per-event failures
// are counted and logged without touching sibling events. It returns
// ErrInvalidRequest for a missing messages array, ErrForbidden for a
// strict-mode denial, and a configuration error when a synchronous call
// finds credentials missing; the partial outcome accompanies every error.
func (o *Orchestrator) Process(ctx context.Context, req *models.PushRequest) (*models.BatchOutcome, error) {
	if req == nil || req.Messages == nil {
		return nil, ErrInvalidRequest
	}

	outcome := &models.BatchOutcome{Received: len(req.Messages)}

	for _, msg := range req.Messages {
		event, err := decoder.Decode(msg)
		if err != nil {
			outcome.Failed++
			metrics.DecodeErrors.Inc()
			metrics.MessagesTotal.WithLabelValues("decode_error").Inc()
			o.logger.WarnContext(ctx, "dropping undecodable message",
				logging.Error(err),
			)
			o.deadLetter(ctx, msg, err, dlq.ReasonDecode)
			continue
		}

		if !o.policy.Allowed(event.RepositoryName) {
			if o.opts.Strict {
				metrics.MessagesTotal.WithLabelValues("forbidden").Inc()
				return outcome, fmt.Errorf("%w: %s", ErrForbidden, event.RepositoryName)
			}
			outcome.Skipped++
			metrics.MessagesTotal.WithLabelValues("skipped").Inc()
			o.logger.InfoContext(ctx, "skipping unauthorized event",
				logging.Repository(event.RepositoryName),
				logging.Topic(event.Topic),
				logging.UUID(event.UUID),
			)
			continue
		}

		if err := o.processEvent(ctx, msg, event); err != nil {
			if isConfigurationError(err) {
				return outcome, err
			}
			outcome.Failed++
			metrics.MessagesTotal.WithLabelValues("failed").Inc()
			continue
		}

		outcome.Processed++
		metrics.MessagesTotal.WithLabelValues("processed").Inc()
	}

	return outcome, nil
}

// processEvent handles one authorized event. The returned error covers only
// the path up to (and including) the persisted record; enrichment failures
// are terminal per event and already logged.
func (o *Orchestrator) processEvent(ctx context.Context, msg models.PushMessage, event *models.NewsEvent) error {
	record := newRecord(event)

	if o.opts.Mode == ModeDetached {
		return o.processDetached(ctx, msg, event, record)
	}
	return o.processInline(ctx, msg, event, record)
}

func (o *Orchestrator) processInline(ctx context.Context, msg models.PushMessage, event *models.NewsEvent, record *models.NotificationRecord) error {
	// Writes already issued are allowed to complete even if the caller
	// disconnects mid-batch.
	writeCtx := context.WithoutCancel(ctx)

	if o.opts.AcceptedRecord {
		if err := o.store.Insert(writeCtx, record); err != nil {
			o.logInsertFailure(ctx, msg, record, err)
			return err
		}

		summary, err := o.enricher.Summarize(ctx, buildPrompt(event))
		if err != nil {
			if isConfigurationError(err) {
				return err
			}
			o.logger.ErrorContext(ctx, "enrichment failed",
				logging.UUID(record.UUID),
				logging.Error(err),
			)
			o.deadLetter(ctx, msg, err, dlq.ReasonEnrichment)
			o.markFailed(writeCtx, record.UUID)
			return nil
		}

		if err := o.store.UpdateSummary(writeCtx, record.UUID, summary); err != nil {
			o.logger.ErrorContext(ctx, "summary update failed",
				logging.UUID(record.UUID),
				logging.Error(err),
			)
			o.deadLetter(ctx, msg, err, dlq.ReasonPersistence)
		}
		return nil
	}

	// Single-write variant: the record is created once, carrying the final
	// status of the enrichment attempt.
	summary, err := o.enricher.Summarize(ctx, buildPrompt(event))
	if err != nil {
		if isConfigurationError(err) {
			return err
		}
		o.logger.ErrorContext(ctx, "enrichment failed",
			logging.UUID(record.UUID),
			logging.Error(err),
		)
		o.deadLetter(ctx, msg, err, dlq.ReasonEnrichment)
		record.Status = models.StatusFailed
	} else {
		record.Summary = &summary
		record.Status = models.StatusCompleted
	}

	if err := o.store.Insert(writeCtx, record); err != nil {
		o.logInsertFailure(ctx, msg, record, err)
		return err
	}
	return nil
}

func (o *Orchestrator) processDetached(ctx context.Context, msg models.PushMessage, event *models.NewsEvent, record *models.NotificationRecord) error {
	if err := o.store.Insert(context.WithoutCancel(ctx), record); err != nil {
		o.logInsertFailure(ctx, msg, record, err)
		return err
	}

	prompt := buildPrompt(event)
	id := record.UUID

	submitted := o.runner.Submit(func(taskCtx context.Context) {
		if err := o.store.UpdateStatus(taskCtx, id, models.StatusPending); err != nil {
			o.logger.Error("pending update failed", logging.UUID(id), logging.Error(err))
		}

		summary, err := o.enricher.Summarize(taskCtx, prompt)
		if err != nil {
			o.logger.Error("detached enrichment failed", logging.UUID(id), logging.Error(err))
			o.deadLetter(taskCtx, msg, err, dlq.ReasonEnrichment)
			o.markFailed(taskCtx, id)
			return
		}

		if err := o.store.UpdateSummary(taskCtx, id, summary); err != nil {
			o.logger.Error("detached summary update failed", logging.UUID(id), logging.Error(err))
			o.deadLetter(taskCtx, msg, err, dlq.ReasonPersistence)
		}
	})

	if !submitted {
		// Record stays accepted; a later sweep can retry from the store.
		o.logger.WarnContext(ctx, "detached task queue full, enrichment dropped",
			logging.UUID(id),
		)
		o.deadLetter(ctx, msg, errors.New("task queue full"), dlq.ReasonEnrichment)
	}

	return nil
}

func (o *Orchestrator) markFailed(ctx context.Context, id string) {
	if err := o.store.UpdateStatus(ctx, id, models.StatusFailed); err != nil {
		o.logger.Error("status update failed", logging.UUID(id), logging.Error(err))
	}
}

func (o *Orchestrator) logInsertFailure(ctx context.Context, msg models.PushMessage, record *models.NotificationRecord, err error) {
	o.logger.ErrorContext(ctx, "record insert failed",
		logging.UUID(record.UUID),
		logging.Repository(record.RepositoryName),
		logging.Error(err),
	)
	o.deadLetter(ctx, msg, err, dlq.ReasonPersistence)
}

func (o *Orchestrator) deadLetter(ctx context.Context, msg models.PushMessage, cause error, reason string) {
	if o.dlq == nil {
		return
	}
	if err := o.dlq.Write(ctx, msg, cause, reason); err != nil {
		o.logger.Error("dlq write failed", logging.Reason(reason), logging.Error(err))
	}
}

// newRecord builds the initial lifecycle record. Events without a
// client-supplied uuid get a generated one so persistence stays keyed.
func newRecord(event *models.NewsEvent) *models.NotificationRecord {
	id := event.UUID
	if id == "" {
		id = uuid.New().String()
	}

	return &models.NotificationRecord{
		Email:          event.Email,
		UUID:           id,
		RepositoryName: event.RepositoryName,
		Topic:          event.Topic,
		Status:         models.StatusAccepted,
		CreatedAt:      time.Now().Unix(),
	}
}

// buildPrompt derives the enrichment prompt. A client-supplied prompt wins;
// otherwise one is assembled from the event fields.
func buildPrompt(event *models.NewsEvent) string {
	if event.Prompt != "" {
		return event.Prompt
	}
	if event.Topic != "" {
		return fmt.Sprintf("Summarize the latest %s news for the repository %s.", event.Topic, event.RepositoryName)
	}
	return fmt.Sprintf("Summarize the latest news for the repository %s.", event.RepositoryName)
}

func isConfigurationError(err error) bool {
	return errors.Is(err, store.ErrNotConfigured) || errors.Is(err, enrich.ErrNotConfigured)
}
