package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DRSN-tech/kaspi-conveyor/internal/usecase"
	"github.com/DRSN-tech/kaspi-conveyor/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEvent(t *testing.T) {
	event := usecase.NewConveyorEvent(usecase.EventModerationClosed, 42, map[string]any{"retries": 3})
	event.OccurredAt = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	key, value, err := encodeEvent(event)
	require.NoError(t, err)

	assert.Equal(t, "product-42", string(key))

	var msg map[string]any
	require.NoError(t, json.Unmarshal(value, &msg))
	assert.Equal(t, "moderation.closed", msg["type"])
	assert.Equal(t, float64(42), msg["product_id"])
	assert.Equal(t, "2025-01-02T03:04:05Z", msg["occurred_at"])
	assert.Equal(t, map[string]any{"retries": float64(3)}, msg["payload"])
	assert.NotContains(t, msg, "job_id")

	_, err = uuid.Parse(msg["event_id"].(string))
	assert.NoError(t, err)
}

func TestEncodeEvent_JobKeyAndUniqueIDs(t *testing.T) {
	event := usecase.NewJobEvent(usecase.EventJobFinished, 7, nil)

	key, first, err := encodeEvent(event)
	require.NoError(t, err)
	_, second, err := encodeEvent(event)
	require.NoError(t, err)

	assert.Equal(t, "job-7", string(key))
	assert.NotEqual(t, first, second, "each message gets a fresh event id")
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, NewNopPublisher(logger.NewNop()).Publish(context.Background(), usecase.NewConveyorEvent("x", 1, nil)))
}
