package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairium/experimentd/pkg/models"
)

// EventStore is the Persistence Gateway's typed access to the events
// collection (§4.1). idempotency_key carries a sparse unique index; a
// duplicate submission is reported as duplicate=true, not as an error.
type EventStore struct {
	pool *pgxpool.Pool
}

// Insert appends an event, returning its id (ev.ID). On idempotency-key
// collision it returns the id of the prior row with duplicate=true and a
// nil error.
func (s *EventStore) Insert(ctx context.Context, ev *models.Event) (id string, duplicate bool, err error) {
	dataJSON, err := json.Marshal(ev.Data)
	if err != nil {
		return "", false, err
	}

	var idKey *string
	if ev.IdempotencyKey != "" {
		idKey = &ev.IdempotencyKey
	}

	var dbID int64
	insertErr := s.pool.QueryRow(ctx, `
		INSERT INTO events (event_id, type, component_type, component_id, page_id,
		                     session_id, config_id, data, created_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, ev.ID, ev.Type, ev.ComponentType, ev.ComponentID, ev.PageID,
		ev.SessionID, ev.ConfigID, dataJSON, ev.Timestamp, idKey).Scan(&dbID)

	if classified := classify(insertErr); classified == ErrDuplicate {
		priorID, lookupErr := s.findIDByIdempotencyKey(ctx, ev.IdempotencyKey)
		if lookupErr != nil {
			return "", false, lookupErr
		}
		return priorID, true, nil
	} else if classified != nil {
		return "", false, classified
	}

	return ev.ID, false, nil
}

func (s *EventStore) findIDByIdempotencyKey(ctx context.Context, key string) (string, error) {
	var eventID string
	err := s.pool.QueryRow(ctx, `SELECT event_id FROM events WHERE idempotency_key = $1`, key).Scan(&eventID)
	return eventID, classify(err)
}

// ListBySession returns events for a session ordered by creation time, for
// data export (out of scope beyond this accessor; the export endpoint
// itself lives outside the core per §1).
func (s *EventStore) ListBySession(ctx context.Context, sessionID string) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, component_type, component_id, page_id,
		       session_id, config_id, data, created_at, idempotency_key
		FROM events WHERE session_id = $1 ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var (
			ev                                                 models.Event
			componentType, componentID, pageID, idempotencyKey *string
			dataJSON                                           []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &componentType, &componentID, &pageID,
			&ev.SessionID, &ev.ConfigID, &dataJSON, &ev.Timestamp, &idempotencyKey); err != nil {
			return nil, err
		}
		if componentType != nil {
			ev.ComponentType = *componentType
		}
		if componentID != nil {
			ev.ComponentID = *componentID
		}
		if pageID != nil {
			ev.PageID = *pageID
		}
		if idempotencyKey != nil {
			ev.IdempotencyKey = *idempotencyKey
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &ev.Data); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
