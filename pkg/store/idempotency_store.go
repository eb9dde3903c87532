package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyTTL is the minimum retention window required by §3 (TTL ≥
// 24h). Rows older than this are eligible for the periodic sweep run by
// cmd/experimentd (Postgres has no native per-row TTL).
const IdempotencyTTL = 24 * time.Hour

// IdempotencyStore backs §4.5's advance/updateState idempotency reservation:
// a dedicated collection (rather than relying solely on a unique index on
// the mutated resource) so that replays after the TTL window look like
// first-time requests — an intentional tradeoff documented in §9.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// Reserve attempts to claim a key. Returns (reserved=true, nil) on first
// use, or (false, nil) if the key was already reserved (a replay).
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (reserved bool, err error) {
	_, err = s.pool.Exec(ctx, `INSERT INTO idempotency_keys (key) VALUES ($1)`, key)
	classified := classify(err)
	if classified == ErrDuplicate {
		return false, nil
	}
	if classified != nil {
		return false, classified
	}
	return true, nil
}

// Sweep deletes reservations older than the TTL. Intended to run on a
// ticker from cmd/experimentd; failures are logged and swallowed by the
// caller per §7 (auxiliary-write failures never surface to participants).
func (s *IdempotencyStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < now() - make_interval(secs => $1)`,
		IdempotencyTTL.Seconds())
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}
