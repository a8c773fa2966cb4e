package models

import "time"

// WorkflowState is one of the fixed states in the processing state machine
// (spec.md §4.F). Transitions between states are governed by a fixed table
// enforced by pkg/workflow, not by this package.
type WorkflowState string

const (
	WorkflowStateCreated           WorkflowState = "CREATED"
	WorkflowStateQueued            WorkflowState = "QUEUED"
	WorkflowStateProcessing        WorkflowState = "PROCESSING"
	WorkflowStateWaiting           WorkflowState = "WAITING"
	WorkflowStateCompleted         WorkflowState = "COMPLETED"
	WorkflowStateFailed            WorkflowState = "FAILED"
	WorkflowStateCancelled         WorkflowState = "CANCELLED"
	WorkflowStateRetrying          WorkflowState = "RETRYING"
	WorkflowStateSuspended         WorkflowState = "SUSPENDED"
	WorkflowStateQuotaExceeded     WorkflowState = "QUOTA_EXCEEDED"
	WorkflowStatePartiallyProcessed WorkflowState = "PARTIALLY_PROCESSED"
)

// WorkflowStage names a pipeline stage a WorkflowItem may be parked at.
type WorkflowStage string

const (
	StageDiscovery    WorkflowStage = "discovery"
	StageEnrichment   WorkflowStage = "enrichment"
	StageDataMapping  WorkflowStage = "data_mapping"
	StageScoring      WorkflowStage = "scoring"
	StageIndexing     WorkflowStage = "indexing"
	StageNotification WorkflowStage = "notification"
)

// WorkflowItem is a single unit of work moving through the pipeline: a
// source page or product version progressing through discovery, enrichment,
// scoring, indexing, and notification.
type WorkflowItem struct {
	ID           string        `json:"id"`
	ProductID    string        `json:"product_id,omitempty"`
	SourcePageID string        `json:"source_page_id,omitempty"`
	Priority     int           `json:"priority"`
	State        WorkflowState `json:"state"`
	Stage        WorkflowStage `json:"stage"`
	RetryCount   int           `json:"retry_count"`
	NextRetryAt  *time.Time    `json:"next_retry_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	StageDetails StageDetails  `json:"stage_details,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// StageDetails is an opaque per-stage bag of progress data (e.g. which
// images were already uploaded, partial AI output) carried across retries so
// a resumed item does not repeat completed sub-steps.
type StageDetails map[string]any

// WorkflowTransition is an append-only audit record of one state change,
// written by pkg/workflow every time it moves an item (spec.md §5).
type WorkflowTransition struct {
	ID           string        `json:"id"`
	WorkflowID   string        `json:"workflow_id"`
	FromState    WorkflowState `json:"from_state"`
	ToState      WorkflowState `json:"to_state"`
	Reason       string        `json:"reason,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}

// QuotaUsageLog records one admitted call against a service quota, including
// the expansion's cost-tracking fields (SPEC_FULL.md §3).
type QuotaUsageLog struct {
	ID            string    `json:"id"`
	Service       string    `json:"service"`
	WorkflowID    string    `json:"workflow_id,omitempty"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	ImageTokens   int       `json:"image_tokens"`
	CostUSD       float64   `json:"cost_usd"`
	PricingModel  string    `json:"pricing_model"`
	OccurredAt    time.Time `json:"occurred_at"`
}
