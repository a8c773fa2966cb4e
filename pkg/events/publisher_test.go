package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(StateChangedPayload{
			BasePayload: BasePayload{
				Type:       EventTypeStateChanged,
				WorkflowID: "wf-123",
			},
			ToState: "processing",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, EventTypeStateChanged)
		assert.Contains(t, result, "wf-123")
	})

	t.Run("truncates oversized payload", func(t *testing.T) {
		longMessage := make([]byte, 8000)
		for i := range longMessage {
			longMessage[i] = 'a'
		}
		payload, _ := json.Marshal(ErrorOccurredPayload{
			BasePayload: BasePayload{
				Type:       EventTypeErrorOccurred,
				WorkflowID: "wf-123",
			},
			Message: string(longMessage),
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, "truncated")
		assert.Less(t, len(result), 8000)
	})

	t.Run("does not truncate small payload", func(t *testing.T) {
		payload, _ := json.Marshal(StageProgressPayload{
			BasePayload: BasePayload{Type: EventTypeStageProgress},
			Stage:       "scoring",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("truncated payload preserves key fields", func(t *testing.T) {
		longMessage := make([]byte, 8000)
		for i := range longMessage {
			longMessage[i] = 'x'
		}
		payload, _ := json.Marshal(ErrorOccurredPayload{
			BasePayload: BasePayload{
				Type:       EventTypeErrorOccurred,
				WorkflowID: "wf-789",
			},
			Message: string(longMessage),
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)

		assert.Contains(t, result, EventTypeErrorOccurred)
		assert.Contains(t, result, "wf-789")
		assert.Contains(t, result, `"truncated":true`)
		assert.NotContains(t, result, "xxxx")
	})

	t.Run("boundary: payload just under limit is not truncated", func(t *testing.T) {
		// Build a payload whose JSON is just under 7900 bytes. Marshal an
		// empty struct first to measure the overhead of the struct's fixed
		// fields (keys, quotes, separators). The 20-byte safety margin
		// accounts for JSON encoding variability: if new fields with non-zero
		// defaults are added to ErrorOccurredPayload, the base overhead grows
		// and the margin prevents the test from flipping unexpectedly.
		base, _ := json.Marshal(ErrorOccurredPayload{
			BasePayload: BasePayload{Type: "t"},
		})
		messageSize := 7900 - len(base) - 20
		message := make([]byte, messageSize)
		for i := range message {
			message[i] = 'b'
		}
		payload, _ := json.Marshal(ErrorOccurredPayload{
			BasePayload: BasePayload{Type: "t"},
			Message:     string(message),
		})
		require.LessOrEqual(t, len(payload), 7900, "test payload should be under limit")

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("empty JSON object", func(t *testing.T) {
		result, err := truncateIfNeeded("{}")
		require.NoError(t, err)
		assert.Equal(t, "{}", result)
	})
}

func TestInjectDBEventIDAndTruncate(t *testing.T) {
	t.Run("injects db_event_id into normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(StateChangedPayload{
			BasePayload: BasePayload{
				Type:       EventTypeStateChanged,
				WorkflowID: "wf-1",
			},
			ToState: "completed",
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "wf-1")
	})

	t.Run("truncated payload preserves db_event_id", func(t *testing.T) {
		longMessage := make([]byte, 8000)
		for i := range longMessage {
			longMessage[i] = 'x'
		}
		payload, _ := json.Marshal(ErrorOccurredPayload{
			BasePayload: BasePayload{
				Type:       EventTypeErrorOccurred,
				WorkflowID: "wf-789",
			},
			Message: string(longMessage),
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "wf-789")
	})

	t.Run("truncated payload without workflow_id keeps db_event_id", func(t *testing.T) {
		longStage := make([]byte, 8000)
		for i := range longStage {
			longStage[i] = 'x'
		}
		payload, _ := json.Marshal(StageProgressPayload{
			BasePayload: BasePayload{Type: EventTypeStageProgress},
			Stage:       string(longStage),
		})

		result, err := injectDBEventIDAndTruncate(payload, 99)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":99`)
	})
}

func TestNewEventPublisher(t *testing.T) {
	publisher := NewEventPublisher(nil)
	assert.NotNil(t, publisher)
	assert.Nil(t, publisher.db)
}

func TestStateChangedPayload_JSON(t *testing.T) {
	payload := StateChangedPayload{
		BasePayload: BasePayload{
			Type:       EventTypeStateChanged,
			WorkflowID: "wf-456",
			Timestamp:  "2026-02-10T12:00:00Z",
		},
		FromState: "queued",
		ToState:   "processing",
		Reason:    "claimed by worker",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded StateChangedPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeStateChanged, decoded.Type)
	assert.Equal(t, "wf-456", decoded.WorkflowID)
	assert.Equal(t, "queued", decoded.FromState)
	assert.Equal(t, "processing", decoded.ToState)
	assert.Equal(t, "2026-02-10T12:00:00Z", decoded.Timestamp)
}

func TestErrorOccurredPayload_OmitsEmptyStage(t *testing.T) {
	payload := ErrorOccurredPayload{
		BasePayload: BasePayload{
			Type:       EventTypeErrorOccurred,
			WorkflowID: "wf-456",
		},
		Message: "boom",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"stage"`)
}

func TestPublish_UnknownEventTypeIsANoop(t *testing.T) {
	publisher := NewEventPublisher(nil)
	// Must not panic even with a nil db, since the default branch returns
	// before ever touching p.db.
	publisher.Publish(context.Background(), "bogus.event", map[string]any{"workflow_id": "wf-1"})
}
