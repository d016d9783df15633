package storagetest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

// Factory returns an empty backend. It is called once per subtest.
type Factory func(t *testing.T) storage.Backend

// Run exercises the whole storage.Backend contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("ProductCRUD", func(t *testing.T) { testProductCRUD(t, newBackend(t)) })
	t.Run("ProductFind", func(t *testing.T) { testProductFind(t, newBackend(t)) })
	t.Run("ProductCategories", func(t *testing.T) { testProductCategories(t, newBackend(t)) })
	t.Run("AccountCRUD", func(t *testing.T) { testAccountCRUD(t, newBackend(t)) })
	t.Run("AccountEmailUnique", func(t *testing.T) { testAccountEmailUnique(t, newBackend(t)) })
	t.Run("OrderFind", func(t *testing.T) { testOrderFind(t, newBackend(t)) })
	t.Run("OrderVersioning", func(t *testing.T) { testOrderVersioning(t, newBackend(t)) })
	t.Run("Parity", func(t *testing.T) {
		assert.JSONEq(t, Transcript(t, newBackend(t)), Transcript(t, newBackend(t)))
	})
}

func seedProducts(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	for _, p := range Products() {
		p := p
		require.NoError(t, b.InsertProduct(ctx, &p))
	}
}

func ids(products []models.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func testProductCRUD(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	product := Products()[1]

	require.NoError(t, b.InsertProduct(ctx, &product))
	assert.Equal(t, int64(1), product.Version)

	dup := Products()[1]
	assert.ErrorIs(t, b.InsertProduct(ctx, &dup), storage.ErrConstraint)

	got, err := b.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Wireless Mouse", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("24.5")))
	assert.Equal(t, []string{"mouse-front.jpg", "mouse-side.jpg"}, got.Images)
	assert.Equal(t, "1600", got.Specifications["dpi"])
	assert.True(t, got.CreatedAt.Equal(product.CreatedAt))

	got.Price = decimal.RequireFromString("19.99")
	require.NoError(t, b.UpdateProduct(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	stale := *got
	stale.Version = 1
	assert.ErrorIs(t, b.UpdateProduct(ctx, &stale), storage.ErrConflict)

	reread, err := b.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.True(t, reread.Price.Equal(decimal.RequireFromString("19.99")))

	require.NoError(t, b.DeleteProduct(ctx, product.ID))
	_, err = b.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, b.DeleteProduct(ctx, product.ID), storage.ErrNotFound)

	missing := Products()[0]
	missing.Version = 1
	assert.ErrorIs(t, b.UpdateProduct(ctx, &missing), storage.ErrNotFound)
}

func testProductFind(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedProducts(t, b)

	yes, no := true, false
	min, max := decimal.NewFromInt(20), decimal.NewFromInt(100)

	tests := []struct {
		name string
		q    storage.ProductQuery
		want []string
	}{
		{
			name: "default sort",
			q:    storage.ProductQuery{Sort: storage.DefaultSort},
			want: []string{"laptop-stand", "4k-monitor", "mechanical-keyboard", "wireless-mouse", "usb-c-cable"},
		},
		{
			name: "category",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{CategorySlug: "accessories"}, Sort: storage.DefaultSort},
			want: []string{"laptop-stand", "wireless-mouse", "usb-c-cable"},
		},
		{
			name: "search name case-insensitive",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{Search: "MOUSE"}},
			want: []string{"wireless-mouse"},
		},
		{
			name: "search description",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{Search: "sharp"}},
			want: []string{"4k-monitor"},
		},
		{
			name: "search tags",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{Search: "braid"}},
			want: []string{"usb-c-cable"},
		},
		{
			name: "search escapes pattern characters",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{Search: "a.b%_"}},
			want: []string{},
		},
		{
			name: "out of stock",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{InStock: &no}},
			want: []string{"mechanical-keyboard"},
		},
		{
			name: "featured and best seller",
			q:    storage.ProductQuery{Filter: storage.ProductFilter{Featured: &yes, BestSeller: &yes}},
			want: []string{"4k-monitor"},
		},
		{
			name: "price range ascending",
			q: storage.ProductQuery{
				Filter: storage.ProductFilter{MinPrice: &min, MaxPrice: &max},
				Sort:   storage.Sort{Field: storage.SortByPrice},
			},
			want: []string{"laptop-stand", "wireless-mouse", "mechanical-keyboard"},
		},
		{
			name: "price descending",
			q:    storage.ProductQuery{Sort: storage.Sort{Field: storage.SortByPrice, Desc: true}},
			want: []string{"4k-monitor", "mechanical-keyboard", "wireless-mouse", "laptop-stand", "usb-c-cable"},
		},
		{
			name: "name ascending",
			q:    storage.ProductQuery{Sort: storage.Sort{Field: storage.SortByName}},
			want: []string{"4k-monitor", "laptop-stand", "mechanical-keyboard", "usb-c-cable", "wireless-mouse"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := b.FindProducts(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(page.Items))
			assert.Equal(t, int64(len(tt.want)), page.Total)
		})
	}

	t.Run("pagination", func(t *testing.T) {
		page, err := b.FindProducts(ctx, storage.ProductQuery{Pagination: storage.Pagination{Page: 2, Limit: 2}})
		require.NoError(t, err)
		assert.Equal(t, []string{"mechanical-keyboard", "wireless-mouse"}, ids(page.Items))
		assert.Equal(t, int64(5), page.Total)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 3, page.TotalPages)

		past, err := b.FindProducts(ctx, storage.ProductQuery{Pagination: storage.Pagination{Page: 4, Limit: 2}})
		require.NoError(t, err)
		assert.Empty(t, past.Items)
		assert.NotNil(t, past.Items)
		assert.Equal(t, int64(5), past.Total)
		assert.Equal(t, 4, past.Page)
	})
}

func testProductCategories(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	empty, err := b.ProductCategories(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	seedProducts(t, b)
	categories, err := b.ProductCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Accessories", "Displays", "Peripherals"}, categories)
}

func testAccountCRUD(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	account := Account("acc-1", "ada@example.com")

	require.NoError(t, b.InsertAccount(ctx, &account))
	assert.Equal(t, int64(1), account.Version)

	byEmail, err := b.GetAccountByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", byEmail.ID)

	_, err = b.GetAccountByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	byEmail.Cart = append(byEmail.Cart, models.CartEntry{
		ProductID: "wireless-mouse",
		Quantity:  2,
		Product:   models.CartProduct{Name: "Wireless Mouse", Price: decimal.RequireFromString("24.50"), Currency: "USD"},
		AddedAt:   at(11),
	})
	require.NoError(t, b.UpdateAccount(ctx, byEmail))
	assert.Equal(t, int64(2), byEmail.Version)

	stale, err := b.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	stale.Version = 1
	assert.ErrorIs(t, b.UpdateAccount(ctx, stale), storage.ErrConflict)

	got, err := b.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, got.Cart, 1)
	assert.Equal(t, 2, got.Cart[0].Quantity)
	assert.True(t, got.Cart[0].Product.Price.Equal(decimal.RequireFromString("24.5")))
	assert.Nil(t, got.LockUntil)

	require.NoError(t, b.DeleteAccount(ctx, "acc-1"))
	_, err = b.GetAccount(ctx, "acc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAccountEmailUnique(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	first := Account("acc-1", "ada@example.com")
	second := Account("acc-2", "grace@example.com")
	require.NoError(t, b.InsertAccount(ctx, &first))
	require.NoError(t, b.InsertAccount(ctx, &second))

	clash := Account("acc-3", "ada@example.com")
	assert.ErrorIs(t, b.InsertAccount(ctx, &clash), storage.ErrConstraint)

	second.Email = "ada@example.com"
	assert.ErrorIs(t, b.UpdateAccount(ctx, &second), storage.ErrConstraint)

	got, err := b.GetAccount(ctx, "acc-2")
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", got.Email)
	assert.Equal(t, int64(1), got.Version)
}

func seedOrders(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	orders := []models.Order{
		Order("ord-1", "acc-1", 20, models.OrderStatusPending),
		Order("ord-2", "acc-2", 21, models.OrderStatusShipped),
		Order("ord-3", "acc-1", 22, models.OrderStatusShipped),
		Order("ord-4", "", 22, models.OrderStatusPending),
	}
	for _, o := range orders {
		o := o
		require.NoError(t, b.InsertOrder(ctx, &o))
	}
}

func orderIDs(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func testOrderFind(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	seedOrders(t, b)

	everything, err := b.FindOrders(ctx, storage.OrderQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-4", "ord-3", "ord-2", "ord-1"}, orderIDs(everything.Items))

	mine, err := b.FindOrders(ctx, storage.OrderQuery{Filter: storage.OrderFilter{AccountID: "acc-1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-3", "ord-1"}, orderIDs(mine.Items))

	shipped, err := b.FindOrders(ctx, storage.OrderQuery{
		Filter:     storage.OrderFilter{Status: models.OrderStatusShipped},
		Pagination: storage.Pagination{Page: 1, Limit: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-3"}, orderIDs(shipped.Items))
	assert.Equal(t, int64(2), shipped.Total)
	assert.Equal(t, 2, shipped.TotalPages)

	guest, err := b.GetOrder(ctx, "ord-4")
	require.NoError(t, err)
	assert.Empty(t, guest.AccountID)
	assert.True(t, guest.Pricing.Total.Equal(decimal.RequireFromString("53.99")))
}

func testOrderVersioning(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	order := Order("ord-1", "acc-1", 20, models.OrderStatusPending)
	require.NoError(t, b.InsertOrder(ctx, &order))

	first, err := b.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	second, err := b.GetOrder(ctx, "ord-1")
	require.NoError(t, err)

	require.NoError(t, first.ApplyStatus(models.OrderStatusConfirmed, "admin", "", at(30)))
	require.NoError(t, b.UpdateOrder(ctx, first))

	require.NoError(t, second.ApplyStatus(models.OrderStatusCancelled, "acc-1", "", at(31)))
	assert.ErrorIs(t, b.UpdateOrder(ctx, second), storage.ErrConflict)

	got, err := b.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	assert.Len(t, got.StatusHistory, 2)
	assert.Equal(t, int64(2), got.Version)

	_, err = b.GetOrder(ctx, "ord-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
