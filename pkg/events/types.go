// Package events delivers workflow lifecycle events to subscribers in
// real time via WebSocket, fanned out across replicas with PostgreSQL
// NOTIFY/LISTEN.
//
// Every persistent event is published on the workflow's own channel
// (WorkflowChannel(workflowID)); quota_exceeded is also mirrored onto
// GlobalWorkflowsChannel. The transient stage_progress event goes only to
// GlobalWorkflowsChannel. Persistent events (state_changed, stage_started,
// stage_completed, error_occurred, quota_exceeded) are written to the
// events table before NOTIFY fires, so a client that reconnects can catch
// up on what it missed; stage_progress is transient (NOTIFY only) since
// it is superseded by the next progress tick anyway.
package events

// Persistent event types (stored in DB + NOTIFY).
const (
	EventTypeStateChanged   = "workflow.state_changed"
	EventTypeStageStarted   = "workflow.stage_started"
	EventTypeStageCompleted = "workflow.stage_completed"
	EventTypeErrorOccurred  = "workflow.error_occurred"
	EventTypeQuotaExceeded  = "workflow.quota_exceeded"
)

// Transient event types (NOTIFY only, no DB persistence).
const (
	EventTypeStageProgress = "workflow.stage_progress"
)

// GlobalWorkflowsChannel is the channel for workflow-level status events
// that a queue dashboard subscribes to for a cross-item live view.
const GlobalWorkflowsChannel = "workflows"

// WorkflowChannel returns the channel name for a specific workflow item's
// events. Format: "workflow:{workflow_id}"
func WorkflowChannel(workflowID string) string {
	return "workflow:" + workflowID
}

// ClientMessage is the JSON structure for client -> server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // channel name (e.g., "workflow:abc-123")
	LastEventID *int   `json:"last_event_id,omitempty"` // for catchup
}
