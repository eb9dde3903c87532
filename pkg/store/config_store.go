package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairium/experimentd/pkg/models"
)

// ConfigStore is the Persistence Gateway's typed access to the configs
// collection. Config upload/listing/deletion is out of scope (§1); this
// store only supports the read path the runtime needs to resolve a config
// by id, plus the Put used by the (out-of-scope) upload path's caller.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// GetByID loads a config by id.
func (s *ConfigStore) GetByID(ctx context.Context, id string) (*models.Config, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, owner, require_auth, graph FROM configs WHERE id = $1`, id)

	var cfg models.Config
	var graphJSON []byte
	if err := row.Scan(&cfg.ID, &cfg.Owner, &cfg.RequireAuth, &graphJSON); err != nil {
		return nil, classify(err)
	}
	if err := json.Unmarshal(graphJSON, &cfg.Graph); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Put inserts or replaces a config record. Used by config provisioning
// tooling that sits outside this core (§1); exposed here because the core
// owns the table.
func (s *ConfigStore) Put(ctx context.Context, cfg *models.Config) error {
	graphJSON, err := json.Marshal(cfg.Graph)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO configs (id, owner, require_auth, graph)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET owner = $2, require_auth = $3, graph = $4
	`, cfg.ID, cfg.Owner, cfg.RequireAuth, graphJSON)
	return classify(err)
}
