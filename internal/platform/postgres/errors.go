package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"collecta/pkg/platform/sentinel"
)

// MapError converts pgx errors to sentinels, prefixing op for context.
// Context cancellation passes through unchanged.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001": // unique_violation, serialization_failure
			return fmt.Errorf("%s: %w: %s", op, sentinel.ErrConflict, pgErr.Message)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w: %s", op, sentinel.ErrNotFound, pgErr.Message)
		case "23514": // check_violation
			return fmt.Errorf("%s: %w: %s", op, sentinel.ErrValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
