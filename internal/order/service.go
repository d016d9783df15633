// Package order creates orders from drafts or carts and drives them through
// the status state machine.
package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/cart"
	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

// Store is the slice of the persistence gateway orders need.
type Store interface {
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	FindAccount(ctx context.Context, id string) (*models.Account, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	FindOrders(ctx context.Context, filter storage.OrderFilter, p storage.Pagination) (*storage.Page[models.Order], error)
	InsertOrder(ctx context.Context, o *models.Order) error
	SaveOrder(ctx context.Context, o *models.Order) error
}

// CartClearer empties an account cart after checkout.
type CartClearer interface {
	Clear(ctx context.Context, accountID string) (cart.Cart, error)
}

type Service struct {
	store           Store
	carts           CartClearer
	pricer          Pricer
	defaultCurrency string
	logger          *slog.Logger
}

func NewService(store Store, carts CartClearer, cfg config.OrderConfig, logger *slog.Logger) *Service {
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		store:           store,
		carts:           carts,
		pricer:          NewPricer(cfg),
		defaultCurrency: currency,
		logger:          logger.With("component", "order"),
	}
}

func newOrderNumber(id string) string {
	stamp := models.Now().Format("20060102150405")
	return "ORD-" + stamp + "-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:6])
}

// Create validates the draft, verifies every item against the live catalog
// and only then writes the order, as one record. Nothing is written when any
// item is missing or out of stock.
func (s *Service) Create(ctx context.Context, d Draft) (*models.Order, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	items, currency, err := s.snapshotItems(ctx, d.lines())
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}

	billing := d.ShippingAddress
	if d.BillingAddress != nil {
		billing = *d.BillingAddress
	}

	actor := d.AccountID
	if actor == "" {
		actor = "guest"
	}

	now := models.Now()
	id := uuid.NewString()
	o := &models.Order{
		ID:              id,
		OrderNumber:     newOrderNumber(id),
		AccountID:       d.AccountID,
		Customer:        d.Customer,
		Items:           items,
		TotalAmount:     subtotal,
		Pricing:         s.pricer.Price(subtotal, d.Discount),
		Currency:        currency,
		Status:          models.OrderStatusPending,
		Payment:         models.Payment{Method: d.PaymentMethod, Status: models.PaymentStatusPending},
		ShippingAddress: d.ShippingAddress,
		BillingAddress:  billing,
		Notes:           d.Notes,
		StatusHistory: []models.StatusChange{
			{Status: models.OrderStatusPending, Timestamp: now, Note: "order placed", Actor: actor},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.InsertOrder(ctx, o); err != nil {
		return nil, s.fail(ctx, "create order", o.ID, err)
	}

	s.logger.InfoContext(ctx, "order created",
		"order_id", o.ID, "order_number", o.OrderNumber, "account_id", o.AccountID,
		"items", len(o.Items), "total", o.Pricing.Total.String())
	return o, nil
}

// snapshotItems reads every product before anything is written and freezes
// its name and price. All item problems are reported together.
func (s *Service) snapshotItems(ctx context.Context, lines []DraftItem) ([]models.OrderItem, string, error) {
	items := make([]models.OrderItem, 0, len(lines))
	var itemErrs []error
	currency := ""

	for _, line := range lines {
		product, err := s.store.FindProduct(ctx, line.ProductID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			itemErrs = append(itemErrs, &models.ItemError{ProductID: line.ProductID, Err: models.ErrProductNotFound})
			continue
		case err != nil:
			return nil, "", s.fail(ctx, "verify order item", line.ProductID, err)
		}

		if !product.InStock {
			itemErrs = append(itemErrs, &models.ItemError{ProductID: line.ProductID, Err: models.ErrOutOfStock})
			continue
		}

		c := product.Currency
		if c == "" {
			c = s.defaultCurrency
		}
		if currency == "" {
			currency = c
		} else if c != currency {
			return nil, "", models.NewValidationError(models.FieldError{
				Field:   "items",
				Message: fmt.Sprintf("all items must share one currency: %s is priced in %s, not %s", line.ProductID, c, currency),
			})
		}

		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  line.Quantity,
			LineTotal: product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))),
		})
	}

	switch len(itemErrs) {
	case 0:
		return items, currency, nil
	case 1:
		return nil, "", itemErrs[0]
	}
	return nil, "", errors.Join(itemErrs...)
}

// CheckoutDetails is everything an order needs besides its items.
type CheckoutDetails struct {
	Customer        models.CustomerContact `json:"customer"`
	ShippingAddress models.Address         `json:"shippingAddress"`
	BillingAddress  *models.Address        `json:"billingAddress,omitempty"`
	PaymentMethod   string                 `json:"paymentMethod"`
	Discount        decimal.Decimal        `json:"discount"`
	Notes           string                 `json:"notes"`
}

// Checkout turns the actor's cart into an order. Prices are re-read from
// the catalog. The cart is cleared only after the order is stored; failing
// to clear it is logged, not returned.
func (s *Service) Checkout(ctx context.Context, actor models.Actor, details CheckoutDetails) (*models.Order, error) {
	if actor.AccountID == "" {
		return nil, models.ErrForbidden
	}

	account, err := s.store.FindAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, s.fail(ctx, "checkout", "", err)
	}
	if len(account.Cart) == 0 {
		return nil, models.NewValidationError(models.FieldError{Field: "items", Message: "cart is empty"})
	}

	customer := details.Customer
	if blank(customer.FirstName) {
		customer.FirstName = account.FirstName
	}
	if blank(customer.LastName) {
		customer.LastName = account.LastName
	}
	if blank(customer.Email) {
		customer.Email = account.Email
	}

	d := Draft{
		AccountID:       account.ID,
		Customer:        customer,
		ShippingAddress: details.ShippingAddress,
		BillingAddress:  details.BillingAddress,
		PaymentMethod:   details.PaymentMethod,
		Discount:        details.Discount,
		Notes:           details.Notes,
	}
	for _, entry := range account.Cart {
		d.Items = append(d.Items, DraftItem{ProductID: entry.ProductID, Quantity: entry.Quantity})
	}

	o, err := s.Create(ctx, d)
	if err != nil {
		return nil, err
	}

	if s.carts != nil {
		if _, err := s.carts.Clear(ctx, account.ID); err != nil {
			s.logger.WarnContext(ctx, "cart not cleared after checkout",
				"account_id", account.ID, "order_id", o.ID, "error", err)
		}
	}
	return o, nil
}

// Get returns the order if the actor may see it.
func (s *Service) Get(ctx context.Context, id string, actor models.Actor) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get order", id, err)
	}
	if !actor.Owns(o.AccountID) {
		return nil, models.ErrForbidden
	}
	return o, nil
}

// List returns the actor's own orders, or any orders for an admin.
func (s *Service) List(ctx context.Context, actor models.Actor, filter storage.OrderFilter, p storage.Pagination) (*storage.Page[models.Order], error) {
	if !actor.IsAdmin() {
		if actor.AccountID == "" {
			return nil, models.ErrForbidden
		}
		filter.AccountID = actor.AccountID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.NewValidationError(models.FieldError{Field: "status", Message: "unknown order status " + string(filter.Status)})
	}
	if p.Page < 1 {
		p.Page = storage.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = storage.DefaultLimit
	}

	page, err := s.store.FindOrders(ctx, filter, p)
	if err != nil {
		return nil, s.fail(ctx, "list orders", "", err)
	}
	return page, nil
}

func actorName(actor models.Actor) string {
	if actor.AccountID != "" {
		return actor.AccountID
	}
	return string(actor.Role)
}

// Cancel moves a pending, confirmed or processing order to cancelled.
// Customers may cancel only their own orders.
func (s *Service) Cancel(ctx context.Context, id string, actor models.Actor, reason string) (*models.Order, error) {
	o, err := s.mutate(ctx, "cancel order", id, func(o *models.Order) error {
		if !actor.Owns(o.AccountID) {
			return models.ErrForbidden
		}
		if !o.Status.Cancellable() {
			return &models.TransitionError{From: o.Status, To: models.OrderStatusCancelled}
		}
		return o.ApplyStatus(models.OrderStatusCancelled, actorName(actor), reason, models.Now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order cancelled", "order_id", id, "actor", actorName(actor))
	return o, nil
}

// SetStatus is the admin path through the state machine. Every call appends
// to the status history.
func (s *Service) SetStatus(ctx context.Context, id string, status models.OrderStatus, actor models.Actor, note string) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}

	o, err := s.mutate(ctx, "set order status", id, func(o *models.Order) error {
		return o.ApplyStatus(status, actorName(actor), note, models.Now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "order status changed", "order_id", id, "status", o.Status, "actor", actorName(actor))
	return o, nil
}

func (s *Service) mutate(ctx context.Context, op, id string, fn func(*models.Order) error) (*models.Order, error) {
	var result *models.Order
	err := storage.RetryOnConflict(ctx, storage.DefaultMaxAttempts, func() error {
		o, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return err
		}
		if err := s.store.SaveOrder(ctx, o); err != nil {
			return err
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, op, id, err)
	}
	return result, nil
}

func (s *Service) fail(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, models.ErrStorageUnavailable) {
		s.logger.ErrorContext(ctx, "storage unavailable", "op", op, "order_id", id, "error", err)
	}
	return storage.Domain(err)
}
