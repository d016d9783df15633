package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/safar/storefront-core/internal/storage"
)

// wrap maps a driver error onto a storage error kind.
func wrap(err error, op, collection, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.NotFound(op, collection, id)
	case mongo.IsDuplicateKeyError(err):
		return storage.Constraint(op, collection, id, err)
	}
	// Network errors, timeouts and server selection failures all mean the
	// cluster cannot serve us right now.
	return storage.Unavailable(op, collection, err)
}
