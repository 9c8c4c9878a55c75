package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"library-backend/internal/domain"

	"github.com/lib/pq"
)

const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqQueryCanceled        = "57014"
	pqUniqueViolation      = "23505"
	pqCheckViolation       = "23514"
)

// translateError maps driver failures onto the domain taxonomy. Domain errors pass through.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.Busy(err, "The library is busy, please retry")
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected, pqQueryCanceled:
			return domain.Busy(err, "The library is busy, please retry")
		case pqCheckViolation:
			return &domain.Error{Kind: domain.KindInvariantViolation, Message: "inventory constraint violated", Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFoundOr(err error, op string, notFound func() error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound()
	}
	return translateError(err, op)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
