package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairium/experimentd/pkg/models"
)

// ChatMessageStore is the Persistence Gateway's typed access to the
// chat_messages collection (§4.1).
type ChatMessageStore struct {
	pool *pgxpool.Pool
}

// Insert persists a chat message. On idempotency-key collision it returns
// the prior message and duplicate=true rather than an error, matching
// §4.6 send's dedup contract.
func (s *ChatMessageStore) Insert(ctx context.Context, msg *models.ChatMessage) (duplicate bool, err error) {
	var idKey *string
	if msg.IdempotencyKey != "" {
		idKey = &msg.IdempotencyKey
	}

	_, insertErr := s.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, group_id, sender_id, sender_type, content, created_at, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.GroupID, msg.SenderID, msg.SenderType, msg.Content, msg.CreatedAt, idKey)

	classified := classify(insertErr)
	if classified == ErrDuplicate {
		prior, lookupErr := s.findByIdempotencyKey(ctx, msg.IdempotencyKey)
		if lookupErr != nil {
			return false, lookupErr
		}
		*msg = *prior
		return true, nil
	}
	if classified != nil {
		return false, classified
	}
	return false, nil
}

func (s *ChatMessageStore) findByIdempotencyKey(ctx context.Context, key string) (*models.ChatMessage, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, group_id, sender_id, sender_type, content, created_at, COALESCE(idempotency_key, '')
		FROM chat_messages WHERE idempotency_key = $1
	`, key)
	return scanChatMessage(row)
}

// ListByGroup returns messages for a group ordered by creation time
// ascending (§4.6 history, P6).
func (s *ChatMessageStore) ListByGroup(ctx context.Context, groupID string) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, group_id, sender_id, sender_type, content, created_at, COALESCE(idempotency_key, '')
		FROM chat_messages WHERE group_id = $1 ORDER BY created_at ASC
	`, groupID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		msg, err := scanChatMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanChatMessage(row rowScanner) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	if err := row.Scan(&msg.ID, &msg.GroupID, &msg.SenderID, &msg.SenderType,
		&msg.Content, &msg.CreatedAt, &msg.IdempotencyKey); err != nil {
		return nil, classify(err)
	}
	return &msg, nil
}
