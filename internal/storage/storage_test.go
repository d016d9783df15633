package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/models"
)

func TestStorageErrorKinds(t *testing.T) {
	err := NotFound("get", CollectionProducts, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "get products p1: not found", err.Error())

	cause := errors.New("disk full")
	err = Unavailable("insert", CollectionOrders, cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestDomain(t *testing.T) {
	assert.NoError(t, Domain(nil))

	err := Domain(NotFound("get", CollectionAccounts, "a1"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	err = Domain(Conflict("update", CollectionAccounts, "a1"))
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, err, ErrConflict)

	err = Domain(Unavailable("find", CollectionOrders, errors.New("timeout")))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)

	once := Domain(NotFound("get", CollectionAccounts, "a1"))
	assert.Equal(t, once.Error(), Domain(once).Error())

	constraint := Constraint("insert", CollectionAccounts, "a1", nil)
	assert.Equal(t, constraint, Domain(constraint))
}

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	tests := []struct {
		name       string
		p          Pagination
		items      []int
		page       int
		totalPages int
	}{
		{"everything", Pagination{}, []int{1, 2, 3, 4, 5}, 1, 1},
		{"first page", Pagination{Page: 1, Limit: 2}, []int{1, 2}, 1, 3},
		{"last partial page", Pagination{Page: 3, Limit: 2}, []int{5}, 3, 3},
		{"past the end", Pagination{Page: 9, Limit: 2}, []int{}, 9, 3},
		{"page below one", Pagination{Page: -1, Limit: 2}, []int{1, 2}, 1, 3},
		{"limit clamped", Pagination{Page: 1, Limit: 500}, []int{1, 2, 3, 4, 5}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Paginate(all, tt.p)
			assert.Equal(t, tt.items, page.Items)
			assert.Equal(t, int64(5), page.Total)
			assert.Equal(t, tt.page, page.Page)
			assert.Equal(t, tt.totalPages, page.TotalPages)
		})
	}

	empty := Paginate([]int(nil), Pagination{Page: 1, Limit: 10})
	assert.NotNil(t, empty.Items)
	assert.Zero(t, empty.TotalPages)
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := RetryOnConflict(ctx, 5, func() error {
		calls++
		if calls < 3 {
			return Conflict("update", CollectionAccounts, "a1")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryOnConflict(ctx, 3, func() error {
		calls++
		return Conflict("update", CollectionAccounts, "a1")
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "max attempts (3) exceeded")
	assert.Equal(t, 3, calls)

	calls = 0
	boom := errors.New("boom")
	err = RetryOnConflict(ctx, 3, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = RetryOnConflict(cancelled, 3, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
