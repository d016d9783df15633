package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/safar/storefront-core/internal/storage"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want storage.ErrorKind
	}{
		{"no rows", sql.ErrNoRows, storage.KindNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", sql.ErrNoRows), storage.KindNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, storage.KindConstraint},
		{"serialization failure", &pq.Error{Code: "40001"}, storage.KindConflict},
		{"connection failure", &pq.Error{Code: "08006"}, storage.KindUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, storage.KindUnavailable},
		{"plain error", errors.New("dial tcp: connection refused"), storage.KindUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "get", "products", "p1"))
	assert.ErrorIs(t, Wrap(sql.ErrNoRows, "get", "products", "p1"), storage.ErrNotFound)
	assert.ErrorIs(t, Wrap(&pq.Error{Code: "23505"}, "insert", "accounts", "a1"), storage.ErrConstraint)
	assert.ErrorIs(t, Wrap(errors.New("broken pipe"), "find", "orders", ""), storage.ErrUnavailable)
	assert.ErrorIs(t, Wrap(context.Canceled, "find", "orders", ""), context.Canceled)
}
