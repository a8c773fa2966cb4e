package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EventPublisher publishes workflow lifecycle events for WebSocket delivery.
// Persistent events are stored in the events table then broadcast via NOTIFY.
// Transient events (stage progress) are broadcast via NOTIFY only.
//
// EventPublisher implements pkg/workflow's EventSink interface, so an
// Engine can be wired directly to it.
type EventPublisher struct {
	db *sql.DB
}

// NewEventPublisher creates a new EventPublisher.
// The db parameter should be the *sql.DB from database.Client.DB().
func NewEventPublisher(db *sql.DB) *EventPublisher {
	return &EventPublisher{db: db}
}

// Publish implements workflow.EventSink. It builds the typed payload for
// eventType from data and routes it through the matching persist/notify
// path, logging (rather than returning) any failure: event delivery must
// never be the reason a workflow transition fails.
func (p *EventPublisher) Publish(ctx context.Context, eventType string, data map[string]any) {
	workflowID, _ := data["workflow_id"].(string)
	now := time.Now().Format(time.RFC3339Nano)

	var err error
	switch eventType {
	case EventTypeStateChanged:
		err = p.PublishStateChanged(ctx, StateChangedPayload{
			BasePayload: BasePayload{Type: eventType, WorkflowID: workflowID, Timestamp: now},
			FromState:   stringField(data, "from_state"),
			ToState:     stringField(data, "to_state"),
			Reason:      stringField(data, "reason"),
		})
	case EventTypeStageStarted, EventTypeStageCompleted:
		err = p.PublishStageEvent(ctx, StageEventPayload{
			BasePayload: BasePayload{Type: eventType, WorkflowID: workflowID, Timestamp: now},
			Stage:       stringField(data, "stage"),
		})
	case EventTypeErrorOccurred:
		retrying, _ := data["retrying"].(bool)
		err = p.PublishErrorOccurred(ctx, ErrorOccurredPayload{
			BasePayload: BasePayload{Type: eventType, WorkflowID: workflowID, Timestamp: now},
			Stage:       stringField(data, "stage"),
			Message:     stringField(data, "message"),
			Retrying:    retrying,
		})
	case EventTypeQuotaExceeded:
		wait, _ := data["estimated_wait_seconds"].(int)
		stages, _ := data["completed_stages"].([]string)
		err = p.PublishQuotaExceeded(ctx, QuotaExceededPayload{
			BasePayload:          BasePayload{Type: eventType, WorkflowID: workflowID, Timestamp: now},
			CompletedStages:      stages,
			EstimatedWaitSeconds: wait,
		})
	default:
		slog.Warn("unknown event type published", "event_type", eventType)
		return
	}

	if err != nil {
		slog.Warn("failed to publish workflow event",
			"event_type", eventType, "workflow_id", workflowID, "error", err)
	}
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// --- Typed public methods ---

// PublishStateChanged persists and broadcasts a workflow.state_changed event.
func (p *EventPublisher) PublishStateChanged(ctx context.Context, payload StateChangedPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal StateChangedPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.WorkflowID, WorkflowChannel(payload.WorkflowID), payloadJSON)
}

// PublishStageEvent persists and broadcasts a workflow.stage_started or
// workflow.stage_completed event.
func (p *EventPublisher) PublishStageEvent(ctx context.Context, payload StageEventPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal StageEventPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.WorkflowID, WorkflowChannel(payload.WorkflowID), payloadJSON)
}

// PublishErrorOccurred persists and broadcasts a workflow.error_occurred event.
func (p *EventPublisher) PublishErrorOccurred(ctx context.Context, payload ErrorOccurredPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal ErrorOccurredPayload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.WorkflowID, WorkflowChannel(payload.WorkflowID), payloadJSON)
}

// PublishQuotaExceeded persists and broadcasts a workflow.quota_exceeded event
// to the item's own channel, and mirrors a copy to the global channel so a
// queue dashboard can surface newly-suspended items without subscribing to
// every item individually.
func (p *EventPublisher) PublishQuotaExceeded(ctx context.Context, payload QuotaExceededPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal QuotaExceededPayload: %w", err)
	}

	var firstErr error
	if err := p.persistAndNotify(ctx, payload.WorkflowID, WorkflowChannel(payload.WorkflowID), payloadJSON); err != nil {
		slog.Warn("failed to publish quota_exceeded to item channel",
			"workflow_id", payload.WorkflowID, "error", err)
		firstErr = err
	}
	if err := p.notifyOnly(ctx, GlobalWorkflowsChannel, payloadJSON); err != nil {
		slog.Warn("failed to publish quota_exceeded to global channel",
			"workflow_id", payload.WorkflowID, "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PublishStageProgress broadcasts a transient workflow.stage_progress event
// (no DB persistence) to the global channel for a queue dashboard.
func (p *EventPublisher) PublishStageProgress(ctx context.Context, payload StageProgressPayload) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal StageProgressPayload: %w", err)
	}
	return p.notifyOnly(ctx, GlobalWorkflowsChannel, payloadJSON)
}

// --- Internal core methods ---

// persistAndNotify persists a pre-marshaled event to the database and broadcasts
// via NOTIFY in a single transaction (pg_notify is transactional — held until COMMIT).
func (p *EventPublisher) persistAndNotify(ctx context.Context, workflowID, channel string, payloadJSON []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO events (workflow_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		workflowID, channel, payloadJSON, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	notifyPayload, err := injectDBEventIDAndTruncate(payloadJSON, eventID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event transaction: %w", err)
	}

	return nil
}

// notifyOnly broadcasts a pre-marshaled event via NOTIFY without persisting to DB.
func (p *EventPublisher) notifyOnly(ctx context.Context, channel string, payloadJSON []byte) error {
	notifyPayload, err := truncateIfNeeded(string(payloadJSON))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyPayload)
	if err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// --- Internal helpers ---

// injectDBEventIDAndTruncate adds db_event_id to the JSON payload for NOTIFY
// delivery and applies truncation if the result exceeds PostgreSQL's limit.
func injectDBEventIDAndTruncate(payloadJSON []byte, dbEventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(payloadJSON, &m); err != nil {
		return "", fmt.Errorf("failed to unmarshal payload for db_event_id injection: %w", err)
	}
	m["db_event_id"] = dbEventID

	enrichedBytes, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal enriched NOTIFY payload: %w", err)
	}

	return truncateIfNeeded(string(enrichedBytes))
}

// truncateIfNeeded returns the payload string as-is if it fits within
// PostgreSQL's 8000-byte NOTIFY limit, otherwise returns a minimal
// truncation envelope with only routing fields.
func truncateIfNeeded(payloadStr string) (string, error) {
	if len(payloadStr) <= 7900 {
		return payloadStr, nil
	}
	return buildTruncatedPayload([]byte(payloadStr))
}

// buildTruncatedPayload creates a minimal truncation envelope from the full
// JSON payload bytes, extracting only the routing fields the client needs
// to fetch the complete event from the database.
func buildTruncatedPayload(payloadBytes []byte) (string, error) {
	var routing struct {
		Type       string `json:"type"`
		WorkflowID string `json:"workflow_id"`
		DBEventID  *int64 `json:"db_event_id,omitempty"`
	}
	if err := json.Unmarshal(payloadBytes, &routing); err != nil {
		return "", fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}

	truncated := map[string]any{
		"type":        routing.Type,
		"workflow_id": routing.WorkflowID,
		"truncated":   true,
	}
	if routing.DBEventID != nil {
		truncated["db_event_id"] = *routing.DBEventID
	}

	truncBytes, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return string(truncBytes), nil
}
