package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"collecta/pkg/platform/sentinel"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, MapError(nil, "op"))
	assert.ErrorIs(t, MapError(pgx.ErrNoRows, "fetch"), sentinel.ErrNotFound)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505"}, "insert"), sentinel.ErrConflict)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23514"}, "insert"), sentinel.ErrValidation)
	assert.ErrorIs(t, MapError(context.Canceled, "fetch"), context.Canceled)

	other := errors.New("boom")
	err := MapError(other, "fetch")
	assert.ErrorIs(t, err, other)
	assert.Contains(t, err.Error(), "fetch: boom")
}
