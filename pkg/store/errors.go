package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is the distinguished outcome §4.1 requires: a unique-index
// violation on an idempotent write, surfaced as a value rather than a
// generic error so callers can treat the replay as a successful no-op.
var ErrDuplicate = errors.New("store: duplicate key")

// ErrNotFound means a query for a single row found none.
var ErrNotFound = errors.New("store: not found")

// postgresUniqueViolation is Postgres error code 23505.
const postgresUniqueViolation = "23505"

// classify maps a raw pgx error to ErrDuplicate / ErrNotFound / the
// original error, so every Store method can do `if err := classify(err);
// err != nil { ... }` instead of repeating this type switch.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation {
		return ErrDuplicate
	}
	return err
}
