package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/safar/storefront-core/internal/storage"
)

// ClassifyError maps a database/sql or pq error onto a storage error kind.
func ClassifyError(err error) storage.ErrorKind {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.KindNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23502", "23514":
			return storage.KindConstraint
		case "40001", "40P01":
			return storage.KindConflict
		}
		// Class 08 (connection), 53 (resources), 57 (operator intervention).
		switch {
		case strings.HasPrefix(string(pqErr.Code), "08"),
			strings.HasPrefix(string(pqErr.Code), "53"),
			strings.HasPrefix(string(pqErr.Code), "57"):
			return storage.KindUnavailable
		}
	}

	return storage.KindUnavailable
}

// Wrap converts err into a *storage.StorageError for op on collection.
// Context cancellation is passed through untouched.
func Wrap(err error, op, collection, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch ClassifyError(err) {
	case storage.KindNotFound:
		return storage.NotFound(op, collection, id)
	case storage.KindConstraint:
		return storage.Constraint(op, collection, id, err)
	case storage.KindConflict:
		return storage.Conflict(op, collection, id)
	}
	return storage.Unavailable(op, collection, err)
}
