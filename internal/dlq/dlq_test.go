package dlq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGO523/node-news-notification/internal/models"
)

func TestFileQueue_WriteAndList(t *testing.T) {
	queue, err := NewFileQueue(t.TempDir())
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()

	msg := models.PushMessage{MessageID: "m1", Data: "bm90IGpzb24"}
	require.NoError(t, queue.Write(ctx, msg, errors.New("bad payload"), ReasonDecode))
	require.NoError(t, queue.Write(ctx, models.PushMessage{MessageID: "m2"}, errors.New("timeout"), ReasonEnrichment))

	entries, err := queue.List(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "m1", entries[0].Message.MessageID)
	assert.Equal(t, ReasonDecode, entries[0].Reason)
	assert.Equal(t, "bad payload", entries[0].Error)
	assert.False(t, entries[0].Timestamp.IsZero())

	assert.Equal(t, ReasonEnrichment, entries[1].Reason)
}

func TestFileQueue_ListHonorsLimit(t *testing.T) {
	queue, err := NewFileQueue(t.TempDir())
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, queue.Write(ctx, models.PushMessage{}, errors.New("x"), ReasonDecode))
	}

	entries, err := queue.List(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestFileQueue_EmptyList(t *testing.T) {
	queue, err := NewFileQueue(t.TempDir())
	require.NoError(t, err)
	defer queue.Close()

	entries, err := queue.List(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
