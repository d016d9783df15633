// Package cart mutates the cart embedded in each account.
//
// Every mutation is a read-modify-write of the whole account guarded by its
// version: a write that lost a race is retried against the fresh record, so
// concurrent calls never drop each other's changes. AddItem increments an
// existing entry while UpdateQuantity overwrites it; both are intended.
package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

// Store is the slice of the persistence gateway the cart needs.
type Store interface {
	FindAccount(ctx context.Context, id string) (*models.Account, error)
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	SaveAccount(ctx context.Context, account *models.Account) error
}

type Cart struct {
	Entries []models.CartEntry `json:"entries"`
	Total   decimal.Decimal    `json:"total"`
	Count   int                `json:"count"`
}

// SnapshotHint is product data the caller already holds. A complete hint
// (name, price and currency) is frozen into the entry as is; anything less
// makes the service read the live product.
type SnapshotHint struct {
	Name     string
	Price    *decimal.Decimal
	Image    string
	Currency string
}

func (h *SnapshotHint) complete() bool {
	return h != nil && h.Name != "" && h.Price != nil && h.Currency != ""
}

type Service struct {
	store       Store
	logger      *slog.Logger
	maxAttempts int
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		logger:      logger.With("component", "cart"),
		maxAttempts: storage.DefaultMaxAttempts,
	}
}

// Summarize totals entries using their snapshot prices.
func Summarize(entries []models.CartEntry) Cart {
	if entries == nil {
		entries = []models.CartEntry{}
	}
	c := Cart{Entries: entries, Total: decimal.Zero}
	for _, e := range entries {
		c.Total = c.Total.Add(e.LineTotal())
		c.Count += e.Quantity
	}
	return c
}

func (s *Service) Get(ctx context.Context, accountID string) (Cart, error) {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		return Cart{}, s.fail(ctx, "get cart", accountID, err)
	}
	return Summarize(account.Cart), nil
}

// AddItem adds quantity of productID, merging into an existing entry.
func (s *Service) AddItem(ctx context.Context, accountID, productID string, quantity int, hint *SnapshotHint) (Cart, error) {
	if err := validateItem(productID, quantity); err != nil {
		return Cart{}, err
	}

	snapshot, err := s.snapshot(ctx, productID, hint)
	if err != nil {
		return Cart{}, err
	}

	account, err := s.mutate(ctx, "add item", accountID, func(a *models.Account) bool {
		addEntry(a, productID, quantity, snapshot)
		return true
	})
	if err != nil {
		return Cart{}, err
	}
	return Summarize(account.Cart), nil
}

// UpdateQuantity replaces the stored quantity. Zero or less removes the
// entry. Updating a product that is not in the cart is a no-op.
func (s *Service) UpdateQuantity(ctx context.Context, accountID, productID string, quantity int) (Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, accountID, productID)
	}

	account, err := s.mutate(ctx, "update quantity", accountID, func(a *models.Account) bool {
		i := a.CartEntryIndex(productID)
		if i < 0 || a.Cart[i].Quantity == quantity {
			return false
		}
		a.Cart[i].Quantity = quantity
		return true
	})
	if err != nil {
		return Cart{}, err
	}
	return Summarize(account.Cart), nil
}

// RemoveItem deletes the entry for productID. A missing entry is not an error.
func (s *Service) RemoveItem(ctx context.Context, accountID, productID string) (Cart, error) {
	account, err := s.mutate(ctx, "remove item", accountID, func(a *models.Account) bool {
		i := a.CartEntryIndex(productID)
		if i < 0 {
			return false
		}
		a.Cart = append(a.Cart[:i], a.Cart[i+1:]...)
		return true
	})
	if err != nil {
		return Cart{}, err
	}
	return Summarize(account.Cart), nil
}

func (s *Service) Clear(ctx context.Context, accountID string) (Cart, error) {
	account, err := s.mutate(ctx, "clear cart", accountID, func(a *models.Account) bool {
		if len(a.Cart) == 0 {
			return false
		}
		a.Cart = []models.CartEntry{}
		return true
	})
	if err != nil {
		return Cart{}, err
	}
	return Summarize(account.Cart), nil
}

func validateItem(productID string, quantity int) error {
	verr := models.NewValidationError()
	if productID == "" {
		verr.Add("productId", "is required")
	}
	if quantity < 1 {
		verr.Add("quantity", "must be at least 1")
	}
	return verr.OrNil()
}

func (s *Service) snapshot(ctx context.Context, productID string, hint *SnapshotHint) (models.CartProduct, error) {
	if hint.complete() {
		return models.CartProduct{Name: hint.Name, Price: *hint.Price, Image: hint.Image, Currency: hint.Currency}, nil
	}

	product, err := s.store.FindProduct(ctx, productID)
	if errors.Is(err, models.ErrNotFound) {
		return models.CartProduct{}, &models.ItemError{ProductID: productID, Err: models.ErrProductNotFound}
	}
	if err != nil {
		return models.CartProduct{}, s.fail(ctx, "snapshot product", "", err)
	}

	snap := models.CartProduct{
		Name:     product.Name,
		Price:    product.Price,
		Image:    product.PrimaryImage(),
		Currency: product.Currency,
	}
	if hint != nil && hint.Image != "" {
		snap.Image = hint.Image
	}
	return snap, nil
}

func addEntry(a *models.Account, productID string, quantity int, snapshot models.CartProduct) {
	if i := a.CartEntryIndex(productID); i >= 0 {
		a.Cart[i].Quantity += quantity
		return
	}
	a.Cart = append(a.Cart, models.CartEntry{
		ProductID: productID,
		Quantity:  quantity,
		Product:   snapshot,
		AddedAt:   models.Now(),
	})
}

// mutate applies fn to a fresh copy of the account and saves it, retrying
// on version conflicts. fn reports whether it changed anything.
func (s *Service) mutate(ctx context.Context, op, accountID string, fn func(*models.Account) bool) (*models.Account, error) {
	var result *models.Account
	err := storage.RetryOnConflict(ctx, s.maxAttempts, func() error {
		account, err := s.store.FindAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !fn(account) {
			result = account
			return nil
		}
		if err := s.store.SaveAccount(ctx, account); err != nil {
			return err
		}
		result = account
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, accountID, err)
	}
	return result, nil
}

func (s *Service) fail(ctx context.Context, op, accountID string, err error) error {
	if errors.Is(err, models.ErrStorageUnavailable) || errors.Is(err, storage.ErrUnavailable) {
		s.logger.ErrorContext(ctx, "storage unavailable", "op", op, "account_id", accountID, "error", err)
	}
	return storage.Domain(err)
}
