package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyNilIsNil(t *testing.T) {
	assert.NoError(t, classify(nil))
}

func TestClassifyNoRowsBecomesErrNotFound(t *testing.T) {
	assert.ErrorIs(t, classify(pgx.ErrNoRows), ErrNotFound)
}

func TestClassifyUniqueViolationBecomesErrDuplicate(t *testing.T) {
	err := classify(&pgconn.PgError{Code: postgresUniqueViolation})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestClassifyOtherPgErrorPassesThrough(t *testing.T) {
	orig := &pgconn.PgError{Code: "08006"}
	err := classify(orig)
	assert.Same(t, orig, err)
}

func TestClassifyUnrelatedErrorPassesThrough(t *testing.T) {
	orig := errors.New("boom")
	assert.Same(t, orig, classify(orig))
}
