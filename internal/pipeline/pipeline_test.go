package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGO523/node-news-notification/internal/access"
	"github.com/AGO523/node-news-notification/internal/models"
	"github.com/AGO523/node-news-notification/internal/store"
	"github.com/AGO523/node-news-notification/internal/tasks"
)

type storeOp struct {
	kind    string // insert, update_summary, update_status
	uuid    string
	status  string
	summary string
}

type fakeStore struct {
	mu        sync.Mutex
	ops       []storeOp
	insertErr error
	updateErr error
}

func (f *fakeStore) Insert(ctx context.Context, record *models.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.ops = append(f.ops, storeOp{kind: "insert", uuid: record.UUID, status: record.Status})
	return nil
}

func (f *fakeStore) UpdateSummary(ctx context.Context, uuid, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.ops = append(f.ops, storeOp{kind: "update_summary", uuid: uuid, summary: summary})
	return nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, uuid, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, storeOp{kind: "update_status", uuid: uuid, status: status})
	return nil
}

func (f *fakeStore) snapshot() []storeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storeOp(nil), f.ops...)
}

type fakeEnricher struct {
	summary string
	err     error
	prompts []string
	mu      sync.Mutex
}

func (f *fakeEnricher) Summarize(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func message(t *testing.T, payload string) models.PushMessage {
	t.Helper()
	return models.PushMessage{Data: base64.StdEncoding.EncodeToString([]byte(payload))}
}

func eventPayload(uuid, repo string) string {
	return fmt.Sprintf(`{"uuid":%q,"repositoryName":%q,"topic":"releases","prompt":"summarize %s"}`, uuid, repo, repo)
}

func newInlineOrchestrator(st Store, en Enricher, opts Options) *Orchestrator {
	policy := access.NewPolicy("AGO523", []string{"repoA"}, access.MatchBare)
	return New(policy, en, st, nil, nil, nil, opts)
}

func TestProcess_InvalidRequest(t *testing.T) {
	o := newInlineOrchestrator(&fakeStore{}, &fakeEnricher{}, Options{Mode: ModeInline, AcceptedRecord: true})

	_, err := o.Process(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.Process(context.Background(), &models.PushRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestProcess_InlineHappyPath(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{summary: "fresh release notes"}
	o := newInlineOrchestrator(st, en, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Received)
	assert.Equal(t, 1, outcome.Processed)
	assert.Equal(t, 0, outcome.Skipped)
	assert.Equal(t, 0, outcome.Failed)

	ops := st.snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, storeOp{kind: "insert", uuid: "u1", status: models.StatusAccepted}, ops[0])
	assert.Equal(t, storeOp{kind: "update_summary", uuid: "u1", summary: "fresh release notes"}, ops[1])

	require.Len(t, en.prompts, 1)
	assert.Equal(t, "summarize repoA", en.prompts[0])
}

func TestProcess_BatchIsolation(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{summary: "ok"}
	o := newInlineOrchestrator(st, en, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
		message(t, eventPayload("u2", "repoA")),
		{Data: "&&&not-base64&&&"},
		message(t, eventPayload("u4", "repoA")),
		message(t, eventPayload("u5", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.Received)
	assert.Equal(t, 4, outcome.Processed)
	assert.Equal(t, 1, outcome.Failed)

	var inserted []string
	for _, op := range st.snapshot() {
		if op.kind == "insert" {
			inserted = append(inserted, op.uuid)
		}
	}
	assert.Equal(t, []string{"u1", "u2", "u4", "u5"}, inserted)
}

func TestProcess_DenialSkipsEvent(t *testing.T) {
	st := &fakeStore{}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoB")),
		message(t, eventPayload("u2", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Equal(t, 1, outcome.Processed)

	// No record is created for denied events.
	for _, op := range st.snapshot() {
		assert.NotEqual(t, "u1", op.uuid)
	}
}

func TestProcess_StrictDenialAbortsBatch(t *testing.T) {
	st := &fakeStore{}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, Strict: true, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
		message(t, eventPayload("u2", "repoB")),
		message(t, eventPayload("u3", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, outcome.Processed, "events before the denial are kept")

	for _, op := range st.snapshot() {
		assert.NotEqual(t, "u3", op.uuid, "events after the denial must not be touched")
	}
}

func TestProcess_MissingRepositoryDenied(t *testing.T) {
	st := &fakeStore{}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, `{"uuid":"u1"}`),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Empty(t, st.snapshot())
}

func TestProcess_EnrichmentFailureMarksRecordFailed(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{err: errors.New("model timeout")}
	o := newInlineOrchestrator(st, en, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
		message(t, eventPayload("u2", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err, "enrichment failure must not abort the batch")
	assert.Equal(t, 2, outcome.Processed)

	ops := st.snapshot()
	require.Len(t, ops, 4)
	assert.Equal(t, storeOp{kind: "insert", uuid: "u1", status: models.StatusAccepted}, ops[0])
	assert.Equal(t, storeOp{kind: "update_status", uuid: "u1", status: models.StatusFailed}, ops[1])
}

func TestProcess_SingleWriteVariant(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{summary: "done"}
	o := newInlineOrchestrator(st, en, Options{Mode: ModeInline, AcceptedRecord: false})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Processed)

	ops := st.snapshot()
	require.Len(t, ops, 1, "single-write variant issues exactly one insert")
	assert.Equal(t, "insert", ops[0].kind)
	assert.Equal(t, models.StatusCompleted, ops[0].status)
}

func TestProcess_InsertFailureCountsFailed(t *testing.T) {
	st := &fakeStore{insertErr: &store.RemoteError{StatusCode: 502, Body: "down"}}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 0, outcome.Processed)
}

func TestProcess_ConfigurationErrorAborts(t *testing.T) {
	st := &fakeStore{insertErr: store.ErrNotConfigured}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	_, err := o.Process(context.Background(), req)
	assert.ErrorIs(t, err, store.ErrNotConfigured)
}

func TestProcess_DetachedMode(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{summary: "deferred summary"}
	runner := tasks.NewRunner(1, 16, 5*time.Second)
	defer runner.Close()

	policy := access.NewPolicy("AGO523", []string{"repoA"}, access.MatchBare)
	o := New(policy, en, st, runner, nil, nil, Options{Mode: ModeDetached, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Processed)

	// The accepted insert is synchronous; enrichment happens on the runner.
	ops := st.snapshot()
	require.NotEmpty(t, ops)
	assert.Equal(t, storeOp{kind: "insert", uuid: "u1", status: models.StatusAccepted}, ops[0])

	require.Eventually(t, func() bool {
		for _, op := range st.snapshot() {
			if op.kind == "update_summary" && op.uuid == "u1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "detached update did not arrive")

	// Causality: the insert precedes every write for the same uuid.
	final := st.snapshot()
	assert.Equal(t, "insert", final[0].kind)
	for _, op := range final[1:] {
		assert.NotEqual(t, "insert", op.kind)
	}
}

func TestProcess_DetachedEnrichmentFailureOnlyLogged(t *testing.T) {
	st := &fakeStore{}
	en := &fakeEnricher{err: errors.New("quota exhausted")}
	runner := tasks.NewRunner(1, 16, 5*time.Second)
	defer runner.Close()

	policy := access.NewPolicy("AGO523", []string{"repoA"}, access.MatchBare)
	o := New(policy, en, st, runner, nil, nil, Options{Mode: ModeDetached, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, eventPayload("u1", "repoA")),
	}}

	outcome, err := o.Process(context.Background(), req)
	require.NoError(t, err, "detached failures never surface to the caller")
	assert.Equal(t, 1, outcome.Processed)

	require.Eventually(t, func() bool {
		for _, op := range st.snapshot() {
			if op.kind == "update_status" && op.status == models.StatusFailed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcess_GeneratesUUIDWhenAbsent(t *testing.T) {
	st := &fakeStore{}
	o := newInlineOrchestrator(st, &fakeEnricher{summary: "ok"}, Options{Mode: ModeInline, AcceptedRecord: true})

	req := &models.PushRequest{Messages: []models.PushMessage{
		message(t, `{"repositoryName":"repoA"}`),
	}}

	_, err := o.Process(context.Background(), req)
	require.NoError(t, err)

	ops := st.snapshot()
	require.Len(t, ops, 2)
	assert.NotEmpty(t, ops[0].uuid)
	assert.Equal(t, ops[0].uuid, ops[1].uuid, "generated uuid keys the whole lifecycle")
}

func TestBuildPrompt(t *testing.T) {
	assert.Equal(t, "custom", buildPrompt(&models.NewsEvent{Prompt: "custom", Topic: "x", RepositoryName: "r"}))
	assert.Equal(t,
		"Summarize the latest releases news for the repository repoA.",
		buildPrompt(&models.NewsEvent{Topic: "releases", RepositoryName: "repoA"}),
	)
	assert.Equal(t,
		"Summarize the latest news for the repository repoA.",
		buildPrompt(&models.NewsEvent{RepositoryName: "repoA"}),
	)
}
