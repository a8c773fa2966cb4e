package events

// BasePayload is embedded in every event payload that flows through a
// workflow-specific channel. Every WebSocket message routed on
// WorkflowChannel(workflowID) carries a non-empty WorkflowID so a client
// subscribed to several items at once can demultiplex them.
type BasePayload struct {
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id"`
	Timestamp  string `json:"timestamp"` // RFC3339Nano
}

// StateChangedPayload is the payload for workflow.state_changed events.
// Published whenever the engine moves an item between states.
type StateChangedPayload struct {
	BasePayload
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Reason    string `json:"reason,omitempty"`
}

// StageEventPayload is the payload for workflow.stage_started and
// workflow.stage_completed events. One struct covers both: the client
// discriminates by Type.
type StageEventPayload struct {
	BasePayload
	Stage string `json:"stage"`
}

// ErrorOccurredPayload is the payload for workflow.error_occurred events.
type ErrorOccurredPayload struct {
	BasePayload
	Stage    string `json:"stage,omitempty"`
	Message  string `json:"message"`
	Retrying bool   `json:"retrying"`
}

// QuotaExceededPayload is the payload for workflow.quota_exceeded events.
type QuotaExceededPayload struct {
	BasePayload
	CompletedStages      []string `json:"completed_stages"`
	EstimatedWaitSeconds int      `json:"estimated_wait_seconds"`
}

// StageProgressPayload is the payload for the transient workflow.stage_progress
// event, broadcast to the global channel for a queue dashboard's live view.
// Not persisted: the next tick supersedes it.
type StageProgressPayload struct {
	BasePayload
	Stage      string `json:"stage"`
	Percentage int    `json:"percentage"`
}
