package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
	"github.com/padhub/backend/internal/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeConnectionFailure   = "08006"
)

// storageError converts a database/sql failure into the apperr taxonomy.
// Postgres errors keep their SQLSTATE; context errors pass through untouched
// so callers can still tell cancellation from failure.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &apperr.DataError{Code: string(pqErr.Code), Message: fmt.Sprintf("%s: %s", op, pqErr.Message)}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return &apperr.DataError{Code: codeConnectionFailure, Message: fmt.Sprintf("%s: %v", op, err)}
	}

	return &apperr.DataError{Message: fmt.Sprintf("%s: %v", op, err)}
}

// notFoundOr returns a NotFoundError for sql.ErrNoRows and a storage error
// otherwise.
func notFoundOr(resource, op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &apperr.NotFoundError{Resource: resource}
	}
	return storageError(op, err)
}

func isCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}
