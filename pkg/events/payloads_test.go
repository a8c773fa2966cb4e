package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateChangedPayload(t *testing.T) {
	payload := StateChangedPayload{
		BasePayload: BasePayload{
			Type:       EventTypeStateChanged,
			WorkflowID: "wf-abc",
			Timestamp:  time.Now().Format(time.RFC3339Nano),
		},
		FromState: "queued",
		ToState:   "processing",
		Reason:    "claimed by worker",
	}

	assert.Equal(t, EventTypeStateChanged, payload.Type)
	assert.Equal(t, "wf-abc", payload.WorkflowID)
	assert.Equal(t, "queued", payload.FromState)
	assert.Equal(t, "processing", payload.ToState)
	assert.NotEmpty(t, payload.Timestamp)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"workflow_id":"wf-abc"`)
}

func TestStageEventPayload(t *testing.T) {
	payload := StageEventPayload{
		BasePayload: BasePayload{Type: EventTypeStageCompleted, WorkflowID: "wf-1"},
		Stage:       "enrichment",
	}
	assert.Equal(t, "enrichment", payload.Stage)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "enrichment", decoded["stage"])
}

func TestErrorOccurredPayload(t *testing.T) {
	payload := ErrorOccurredPayload{
		BasePayload: BasePayload{Type: EventTypeErrorOccurred, WorkflowID: "wf-2"},
		Stage:       "enrichment",
		Message:     "ai adapter timeout",
		Retrying:    true,
	}
	assert.True(t, payload.Retrying)
	assert.Equal(t, "ai adapter timeout", payload.Message)
}

func TestQuotaExceededPayload(t *testing.T) {
	payload := QuotaExceededPayload{
		BasePayload:          BasePayload{Type: EventTypeQuotaExceeded, WorkflowID: "wf-3"},
		CompletedStages:      []string{"discovery"},
		EstimatedWaitSeconds: 120,
	}
	assert.Equal(t, []string{"discovery"}, payload.CompletedStages)
	assert.Equal(t, 120, payload.EstimatedWaitSeconds)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"estimated_wait_seconds":120`)
}

func TestStageProgressPayload(t *testing.T) {
	payload := StageProgressPayload{
		BasePayload: BasePayload{Type: EventTypeStageProgress, WorkflowID: "wf-4"},
		Stage:       "scoring",
		Percentage:  66,
	}
	assert.Equal(t, 66, payload.Percentage)
}
