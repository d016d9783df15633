package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type transcript struct {
	t       *testing.T
	entries []map[string]any
}

func (tr *transcript) record(step string, value any, err error) {
	tr.t.Helper()
	entry := map[string]any{"step": step}
	if err != nil {
		entry["error"] = errorKind(err)
	} else {
		entry["value"] = value
	}
	tr.entries = append(tr.entries, entry)
}

func errorKind(err error) string {
	var se *storage.StorageError
	if errors.As(err, &se) {
		return se.Kind.String()
	}
	return "unclassified: " + err.Error()
}

// Transcript replays a fixed sequence of reads and writes against b and
// returns every result as JSON. Two backends are at parity when their
// transcripts are equal.
func Transcript(t *testing.T, b storage.Backend) string {
	t.Helper()
	ctx := context.Background()
	tr := &transcript{t: t}

	for _, p := range Products() {
		p := p
		err := b.InsertProduct(ctx, &p)
		tr.record("insert product "+p.ID, p.Version, err)
	}

	yes := true
	queries := []storage.ProductQuery{
		{},
		{Pagination: storage.Pagination{Page: 2, Limit: 2}},
		{Filter: storage.ProductFilter{CategorySlug: "accessories"}, Sort: storage.Sort{Field: storage.SortByPrice}},
		{Filter: storage.ProductFilter{Search: "wireless"}},
		{Filter: storage.ProductFilter{Featured: &yes}, Sort: storage.Sort{Field: storage.SortByName, Desc: true}},
	}
	for _, q := range queries {
		page, err := b.FindProducts(ctx, q)
		tr.record("find products", page, err)
	}

	categories, err := b.ProductCategories(ctx)
	tr.record("categories", categories, err)

	product, err := b.GetProduct(ctx, "4k-monitor")
	tr.record("get product", product, err)
	if err == nil {
		product.Price = decimal.RequireFromString("299.00")
		product.UpdatedAt = at(40)
		err = b.UpdateProduct(ctx, product)
		tr.record("update product", product, err)
	}
	_, err = b.GetProduct(ctx, "missing")
	tr.record("get missing product", nil, err)

	first := Account("acc-1", "ada@example.com")
	tr.record("insert account", nil, b.InsertAccount(ctx, &first))
	clash := Account("acc-2", "ada@example.com")
	tr.record("insert duplicate email", nil, b.InsertAccount(ctx, &clash))

	account, err := b.GetAccountByEmail(ctx, "ada@example.com")
	tr.record("get account by email", account, err)
	if err == nil {
		account.Cart = []models.CartEntry{{
			ProductID: "usb-c-cable",
			Quantity:  3,
			Product:   models.CartProduct{Name: "USB-C Cable", Price: decimal.RequireFromString("9.99"), Currency: "USD"},
			AddedAt:   at(41),
		}}
		lock := at(45)
		account.LoginAttempts = 5
		account.LockUntil = &lock
		err = b.UpdateAccount(ctx, account)
		tr.record("update account", account, err)

		stale := *account
		stale.Version = 1
		tr.record("stale account update", nil, b.UpdateAccount(ctx, &stale))
	}

	for _, o := range []models.Order{
		Order("ord-1", "acc-1", 50, models.OrderStatusPending),
		Order("ord-2", "", 51, models.OrderStatusPending),
	} {
		o := o
		tr.record("insert order "+o.ID, o.Version, b.InsertOrder(ctx, &o))
	}

	order, err := b.GetOrder(ctx, "ord-1")
	tr.record("get order", order, err)
	if err == nil {
		require.NoError(t, order.ApplyStatus(models.OrderStatusConfirmed, "admin-1", "payment captured", at(52)))
		tr.record("update order", order, b.UpdateOrder(ctx, order))
	}

	orders, err := b.FindOrders(ctx, storage.OrderQuery{Filter: storage.OrderFilter{AccountID: "acc-1"}})
	tr.record("find account orders", orders, err)
	orders, err = b.FindOrders(ctx, storage.OrderQuery{Pagination: storage.Pagination{Page: 1, Limit: 1}})
	tr.record("find all orders paged", orders, err)

	tr.record("delete account", nil, b.DeleteAccount(ctx, "acc-1"))
	tr.record("delete missing account", nil, b.DeleteAccount(ctx, "acc-1"))

	out, err := json.MarshalIndent(tr.entries, "", "  ")
	require.NoError(t, err)
	return string(out)
}
