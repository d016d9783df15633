package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/account"
	"github.com/safar/storefront-core/internal/cart"
	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/gateway"
	"github.com/safar/storefront-core/internal/logging"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
	"github.com/safar/storefront-core/internal/storage/flatfile"
	"github.com/safar/storefront-core/internal/storage/storagetest"
)

var admin = models.Actor{AccountID: "admin-1", Role: models.RoleAdmin}

type fixture struct {
	gw      *gateway.Gateway
	carts   *cart.Service
	service *Service
}

func newFixture(t *testing.T, orders config.OrderConfig) *fixture {
	backend, err := flatfile.Open(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, p := range storagetest.Products() {
		p := p
		require.NoError(t, backend.InsertProduct(ctx, &p))
	}
	p1 := models.Product{
		ID: "p1", Name: "Widget", Category: "Widgets", CategorySlug: "widgets",
		Price: decimal.RequireFromString("10.00"), Currency: "USD", InStock: true,
		CreatedAt: models.Now(), UpdatedAt: models.Now(),
	}
	require.NoError(t, backend.InsertProduct(ctx, &p1))

	if orders.DefaultCurrency == "" {
		orders.DefaultCurrency = "USD"
	}
	cfg := &config.Config{
		Security: config.SecurityConfig{BcryptCost: 10, MaxLoginAttempts: 5, LockDuration: 2 * time.Hour},
		Orders:   orders,
	}
	gw := gateway.New(backend, cfg, logging.Discard())
	carts := cart.NewService(gw, logging.Discard())
	return &fixture{gw: gw, carts: carts, service: NewService(gw, carts, orders, logging.Discard())}
}

func draft(accountID string, items ...DraftItem) Draft {
	return Draft{
		AccountID:       accountID,
		Customer:        models.CustomerContact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555-0100"},
		Items:           items,
		ShippingAddress: models.Address{Street: "12 St James's Square", City: "London", Country: "GB"},
		PaymentMethod:   models.PaymentMethodCashOnDelivery,
	}
}

func customer(id string) models.Actor {
	return models.Actor{AccountID: id, Role: models.RoleCustomer}
}

func TestCreateSnapshotsPrices(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	o, err := f.service.Create(ctx, draft("acc-1", DraftItem{ProductID: "p1", Quantity: 2}))
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Widget", o.Items[0].Name)
	assert.True(t, o.Items[0].LineTotal.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, models.PaymentStatusPending, o.Payment.Status)
	assert.Equal(t, "USD", o.Currency)
	assert.True(t, strings.HasPrefix(o.OrderNumber, "ORD-"))
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, "acc-1", o.StatusHistory[0].Actor)

	// Raising the catalog price afterwards leaves the order untouched.
	product, err := f.gw.FindProduct(ctx, "p1")
	require.NoError(t, err)
	product.Price = decimal.RequireFromString("15.00")
	require.NoError(t, f.gw.UpdateProduct(ctx, product))

	stored, err := f.service.Get(ctx, o.ID, customer("acc-1"))
	require.NoError(t, err)
	assert.True(t, stored.Items[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("20.00")))
}

func TestCreateTotalsMatchLines(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})

	o, err := f.service.Create(context.Background(), draft("",
		DraftItem{ProductID: "usb-c-cable", Quantity: 3},
		DraftItem{ProductID: "4k-monitor", Quantity: 1},
		DraftItem{ProductID: "usb-c-cable", Quantity: 1},
	))
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.Equal(t, 4, o.Items[0].Quantity)

	sum := decimal.Zero
	for _, item := range o.Items {
		assert.True(t, item.LineTotal.Equal(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))))
		sum = sum.Add(item.LineTotal)
	}
	assert.True(t, o.TotalAmount.Equal(sum))
	assert.True(t, o.Pricing.Total.Equal(sum))
	assert.Equal(t, "guest", o.StatusHistory[0].Actor)
}

func TestCreatePricingAdjustments(t *testing.T) {
	f := newFixture(t, config.OrderConfig{
		TaxRate:          decimal.RequireFromString("0.08"),
		ShippingFlat:     decimal.RequireFromString("4.99"),
		FreeShippingOver: decimal.RequireFromString("100"),
	})
	ctx := context.Background()

	d := draft("acc-1", DraftItem{ProductID: "p1", Quantity: 2})
	d.Discount = decimal.RequireFromString("5")
	o, err := f.service.Create(ctx, d)
	require.NoError(t, err)

	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20")))
	assert.True(t, o.Pricing.Tax.Equal(decimal.RequireFromString("1.60")))
	assert.True(t, o.Pricing.Shipping.Equal(decimal.RequireFromString("4.99")))
	assert.True(t, o.Pricing.Total.Equal(decimal.RequireFromString("21.59")), "got %s", o.Pricing.Total)

	big := draft("acc-1", DraftItem{ProductID: "4k-monitor", Quantity: 1})
	big.Discount = decimal.RequireFromString("1000")
	o, err = f.service.Create(ctx, big)
	require.NoError(t, err)
	assert.True(t, o.Pricing.Shipping.IsZero())
	assert.True(t, o.Pricing.Discount.Equal(o.Pricing.Subtotal))
}

func TestCreateRejectsBadItemsWithoutWriting(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	_, err := f.service.Create(ctx, draft("acc-1",
		DraftItem{ProductID: "p1", Quantity: 1},
		DraftItem{ProductID: "mechanical-keyboard", Quantity: 1},
	))
	require.ErrorIs(t, err, models.ErrOutOfStock)
	var itemErr *models.ItemError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, "mechanical-keyboard", itemErr.ProductID)

	_, err = f.service.Create(ctx, draft("acc-1",
		DraftItem{ProductID: "ghost", Quantity: 1},
		DraftItem{ProductID: "mechanical-keyboard", Quantity: 1},
	))
	assert.ErrorIs(t, err, models.ErrProductNotFound)
	assert.ErrorIs(t, err, models.ErrOutOfStock)

	page, err := f.service.List(ctx, admin, storage.OrderFilter{}, storage.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})

	_, err := f.service.Create(context.Background(), Draft{Items: []DraftItem{{ProductID: "p1", Quantity: 0}}})
	require.ErrorIs(t, err, models.ErrValidation)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	for _, want := range []string{"customer.firstName", "customer.email", "shippingAddress.street", "shippingAddress.city", "shippingAddress.country", "items.quantity", "paymentMethod"} {
		assert.True(t, fields[want], "missing %s", want)
	}

	_, err = f.service.Create(context.Background(), draft("acc-1"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCancelByStatus(t *testing.T) {
	paths := map[models.OrderStatus][]models.OrderStatus{
		models.OrderStatusPending:    nil,
		models.OrderStatusConfirmed:  {models.OrderStatusConfirmed},
		models.OrderStatusProcessing: {models.OrderStatusConfirmed, models.OrderStatusProcessing},
		models.OrderStatusShipped:    {models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusShipped},
		models.OrderStatusDelivered:  {models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered},
		models.OrderStatusCancelled:  {models.OrderStatusCancelled},
		models.OrderStatusRefunded:   {models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusRefunded},
	}

	for status, path := range paths {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, config.OrderConfig{})
			ctx := context.Background()

			o, err := f.service.Create(ctx, draft("acc-1", DraftItem{ProductID: "p1", Quantity: 1}))
			require.NoError(t, err)
			for _, step := range path {
				_, err := f.service.SetStatus(ctx, o.ID, step, admin, "")
				require.NoError(t, err)
			}

			cancelled, err := f.service.Cancel(ctx, o.ID, customer("acc-1"), "changed my mind")
			if status.Cancellable() {
				require.NoError(t, err)
				assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
				assert.NotNil(t, cancelled.CancelledAt)
				return
			}

			require.ErrorIs(t, err, models.ErrInvalidTransition)
			assert.Contains(t, err.Error(), "current status is "+string(status))
		})
	}
}

func TestCancelOwnership(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	o, err := f.service.Create(ctx, draft("acc-1", DraftItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, o.ID, customer("acc-2"), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.service.Cancel(ctx, o.ID, admin, "fraud check")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", cancelled.StatusHistory[len(cancelled.StatusHistory)-1].Actor)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	o, err := f.service.Create(ctx, draft("acc-1", DraftItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = f.service.SetStatus(ctx, o.ID, models.OrderStatusConfirmed, customer("acc-1"), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.service.SetStatus(ctx, o.ID, "teleported", admin, "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = f.service.SetStatus(ctx, o.ID, models.OrderStatusShipped, admin, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	for _, step := range []models.OrderStatus{models.OrderStatusConfirmed, models.OrderStatusProcessing, models.OrderStatusShipped, models.OrderStatusDelivered} {
		o, err = f.service.SetStatus(ctx, o.ID, step, admin, "step "+string(step))
		require.NoError(t, err)
	}
	require.NotNil(t, o.DeliveredAt)
	delivered := *o.DeliveredAt
	assert.Equal(t, models.PaymentStatusPaid, o.Payment.Status)

	o, err = f.service.SetStatus(ctx, o.ID, models.OrderStatusDelivered, admin, "signed by neighbour")
	require.NoError(t, err)
	assert.True(t, o.DeliveredAt.Equal(delivered))

	o, err = f.service.SetStatus(ctx, o.ID, models.OrderStatusRefunded, admin, "damaged")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, o.Payment.Status)

	statuses := make([]models.OrderStatus, 0, len(o.StatusHistory))
	for _, h := range o.StatusHistory {
		statuses = append(statuses, h.Status)
	}
	assert.Equal(t, []models.OrderStatus{
		models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusDelivered,
		models.OrderStatusRefunded,
	}, statuses)
	assert.Equal(t, "signed by neighbour", o.StatusHistory[5].Note)
}

func TestReadScoping(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	mine, err := f.service.Create(ctx, draft("acc-1", DraftItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	_, err = f.service.Create(ctx, draft("acc-2", DraftItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	guest, err := f.service.Create(ctx, draft("", DraftItem{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	_, err = f.service.Get(ctx, mine.ID, customer("acc-2"))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.service.Get(ctx, guest.ID, customer("acc-1"))
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.service.Get(ctx, guest.ID, admin)
	assert.NoError(t, err)
	_, err = f.service.Get(ctx, "missing", admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	page, err := f.service.List(ctx, customer("acc-1"), storage.OrderFilter{AccountID: "acc-2"}, storage.Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, mine.ID, page.Items[0].ID)

	page, err = f.service.List(ctx, admin, storage.OrderFilter{}, storage.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 3)

	_, err = f.service.List(ctx, models.Actor{}, storage.OrderFilter{}, storage.Pagination{})
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t, config.OrderConfig{})
	ctx := context.Background()

	acc, err := f.gw.CreateAccount(ctx, account.Draft{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Password: "analytical engine"})
	require.NoError(t, err)
	actor := customer(acc.ID)

	_, err = f.service.Checkout(ctx, actor, CheckoutDetails{})
	assert.ErrorIs(t, err, models.ErrValidation)

	stale := decimal.RequireFromString("1.00")
	_, err = f.carts.AddItem(ctx, acc.ID, "p1", 2, &cart.SnapshotHint{Name: "Widget", Price: &stale, Currency: "USD"})
	require.NoError(t, err)

	o, err := f.service.Checkout(ctx, actor, CheckoutDetails{
		ShippingAddress: models.Address{Street: "1 Main St", City: "Springfield", Country: "US"},
		PaymentMethod:   "card",
	})
	require.NoError(t, err)
	assert.Equal(t, acc.ID, o.AccountID)
	assert.Equal(t, "ada@example.com", o.Customer.Email)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("20.00")), "checkout re-reads live prices")

	c, err := f.carts.Get(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
}
