package events

import "context"

// EventRow is a persisted event row as read back for catchup delivery.
type EventRow struct {
	ID      int64
	Payload map[string]any
}

// eventQuerier abstracts the event query method needed by EventServiceAdapter.
// Implemented by pkg/repository.
type eventQuerier interface {
	GetEventsSince(ctx context.Context, channel string, sinceID int, limit int) ([]EventRow, error)
}

// EventServiceAdapter wraps an eventQuerier to implement CatchupQuerier.
type EventServiceAdapter struct {
	querier eventQuerier
}

// NewEventServiceAdapter creates a CatchupQuerier from a repository-backed querier.
func NewEventServiceAdapter(q eventQuerier) *EventServiceAdapter {
	return &EventServiceAdapter{querier: q}
}

// GetCatchupEvents queries events since sinceID up to limit for the catchup mechanism.
func (a *EventServiceAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	rows, err := a.querier.GetEventsSince(ctx, channel, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, row := range rows {
		result[i] = CatchupEvent{
			ID:      int(row.ID),
			Payload: row.Payload,
		}
	}
	return result, nil
}
