package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairium/experimentd/pkg/models"
)

// GroupStore is the Persistence Gateway's typed access to the groups
// collection (§4.1). Groups are created atomically by formGroup (§4.4) and
// never resized.
type GroupStore struct {
	pool *pgxpool.Pool
}

// Insert creates a new group record.
func (s *GroupStore) Insert(ctx context.Context, g *models.Group) error {
	membersJSON, err := json.Marshal(g.MemberSessionIDs)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO groups (id, config_id, pool_id, member_session_ids, treatment, matched_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.ConfigID, g.PoolID, membersJSON, g.Treatment, g.MatchedAt, g.Status)
	return classify(err)
}

// GetByID loads a group by its primary key.
func (s *GroupStore) GetByID(ctx context.Context, id string) (*models.Group, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, config_id, pool_id, member_session_ids, treatment, matched_at, status
		FROM groups WHERE id = $1
	`, id)

	var g models.Group
	var membersJSON []byte
	if err := row.Scan(&g.ID, &g.ConfigID, &g.PoolID, &membersJSON, &g.Treatment, &g.MatchedAt, &g.Status); err != nil {
		return nil, classify(err)
	}
	if err := json.Unmarshal(membersJSON, &g.MemberSessionIDs); err != nil {
		return nil, err
	}
	return &g, nil
}
