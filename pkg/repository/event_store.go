package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/labelsquor/squorcore/pkg/events"
)

// GetEventsSince implements the events package's catchup query, reading
// persisted rows back out in ascending id order for delivery to a client
// that reconnected after missing some live notifications.
func (r *Repository) GetEventsSince(ctx context.Context, channel string, sinceID int, limit int) ([]events.EventRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, payload FROM events
		WHERE channel = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`, channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events for channel %s since %d: %w", channel, sinceID, err)
	}
	defer rows.Close()

	var result []events.EventRow
	for rows.Next() {
		var id int64
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}

		var data map[string]any
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, fmt.Errorf("unmarshalling payload for event %d: %w", id, err)
		}
		result = append(result, events.EventRow{ID: id, Payload: data})
	}
	return result, rows.Err()
}
