// Package storage defines the contract every persistence backend satisfies.
//
// Implementations live in the flatfile, mongo and postgres subpackages. They
// must accept the same inputs and return structurally identical records:
// same field names, same ordering, same pagination envelope. Every record
// carries a version starting at 1; Update* succeeds only when the caller's
// version matches the stored one, then increments it in place.
package storage

import (
	"context"

	"github.com/safar/storefront-core/internal/models"
)

const (
	CollectionProducts = "products"
	CollectionAccounts = "accounts"
	CollectionOrders   = "orders"
)

type Backend interface {
	// Name identifies the backend in logs ("mongo", "postgres", "flatfile").
	Name() string

	// Close releases connections or flushes pending state.
	Close(ctx context.Context) error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	FindProducts(ctx context.Context, q ProductQuery) (*Page[models.Product], error)
	// ProductCategories returns the distinct category names, sorted.
	ProductCategories(ctx context.Context) ([]string, error)
	InsertProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeleteProduct(ctx context.Context, id string) error

	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// GetAccountByEmail matches the already-normalized email exactly.
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	// InsertAccount fails with ErrConstraint when the email is taken.
	InsertAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, id string) error

	GetOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrders(ctx context.Context, q OrderQuery) (*Page[models.Order], error)
	InsertOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, order *models.Order) error
}
