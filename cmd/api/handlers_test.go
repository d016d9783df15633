package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/storefront-core/internal/cart"
	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/gateway"
	"github.com/safar/storefront-core/internal/logging"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/order"
	"github.com/safar/storefront-core/internal/storage/flatfile"
	"github.com/safar/storefront-core/internal/storage/storagetest"
)

func newTestServer(t *testing.T) *httptest.Server {
	backend, err := flatfile.Open(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	for _, p := range storagetest.Products() {
		p := p
		require.NoError(t, backend.InsertProduct(ctx, &p))
	}

	cfg := &config.Config{
		Security: config.SecurityConfig{BcryptCost: 10, MaxLoginAttempts: 5, LockDuration: 2 * time.Hour},
		Orders:   config.OrderConfig{DefaultCurrency: "USD"},
	}
	logger := logging.Discard()
	gw := gateway.New(backend, cfg, logger)
	carts := cart.NewService(gw, logger)
	orders := order.NewService(gw, carts, cfg.Orders, logger)

	srv := httptest.NewServer(NewRouter(NewHandler(gw, carts, orders, logger)))
	t.Cleanup(srv.Close)
	return srv
}

type call struct {
	method    string
	path      string
	body      any
	accountID string
	role      string
}

func do(t *testing.T, srv *httptest.Server, c call, out any) int {
	t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req, err := http.NewRequest(c.method, srv.URL+c.path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.accountID != "" {
		req.Header.Set(HeaderAccountID, c.accountID)
	}
	if c.role != "" {
		req.Header.Set(HeaderAccountRole, c.role)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func register(t *testing.T, srv *httptest.Server, email string) models.AccountView {
	var view models.AccountView
	status := do(t, srv, call{method: http.MethodPost, path: "/accounts", body: map[string]string{
		"firstName": "Grace", "lastName": "Hopper", "email": email, "password": "compilers!",
	}}, &view)
	require.Equal(t, http.StatusCreated, status)
	return view
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/health"}, &body))
	assert.Equal(t, "flatfile", body["backend"])
}

func TestProductEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var page struct {
		Items []models.Product `json:"items"`
		Total int64            `json:"total"`
	}
	status := do(t, srv, call{method: http.MethodGet, path: "/products?category=accessories&sort=price&order=asc"}, &page)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "usb-c-cable", page.Items[0].ID)

	var product models.Product
	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/products/4k-monitor"}, &product))
	assert.Equal(t, "4K Monitor", product.Name)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, srv, call{method: http.MethodGet, path: "/products/nope"}, &errResp))
	assert.Equal(t, "not_found", errResp.Error)

	var categories map[string][]string
	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/categories"}, &categories))
	assert.Equal(t, []string{"accessories", "displays", "peripherals"}, categories["categories"])
}

func TestProductWritesRequireAdmin(t *testing.T) {
	srv := newTestServer(t)
	draft := map[string]any{"name": "Webcam", "category": "Peripherals", "price": "49.00"}

	var errResp ErrorResponse
	assert.Equal(t, http.StatusForbidden, do(t, srv, call{method: http.MethodPost, path: "/products", body: draft}, &errResp))

	var created models.Product
	status := do(t, srv, call{method: http.MethodPost, path: "/products", body: draft, role: "admin"}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "webcam", created.ID)
	assert.Equal(t, int64(1), created.Version)

	assert.Equal(t, http.StatusNoContent, do(t, srv, call{method: http.MethodDelete, path: "/products/webcam", role: "admin"}, nil))
}

func TestRegisterLoginAndLockout(t *testing.T) {
	srv := newTestServer(t)
	view := register(t, srv, "Grace@Example.com")
	assert.Equal(t, "grace@example.com", view.Email)

	var errResp ErrorResponse
	status := do(t, srv, call{method: http.MethodPost, path: "/accounts", body: map[string]string{
		"firstName": "Grace", "lastName": "Hopper", "email": "grace@example.com", "password": "compilers!",
	}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, errResp.Fields, 1)
	assert.Equal(t, "email", errResp.Fields[0].Field)

	var login loginResponse
	status = do(t, srv, call{method: http.MethodPost, path: "/sessions", body: map[string]string{
		"email": "grace@example.com", "password": "compilers!",
	}}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, view.ID, login.Account.ID)

	wrong := map[string]string{"email": "grace@example.com", "password": "not it"}
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, do(t, srv, call{method: http.MethodPost, path: "/sessions", body: wrong}, nil))
	}
	right := map[string]string{"email": "grace@example.com", "password": "compilers!"}
	assert.Equal(t, http.StatusLocked, do(t, srv, call{method: http.MethodPost, path: "/sessions", body: right}, nil))
}

func TestAccountAccess(t *testing.T) {
	srv := newTestServer(t)
	grace := register(t, srv, "grace@example.com")
	other := register(t, srv, "alan@example.com")

	assert.Equal(t, http.StatusForbidden, do(t, srv, call{method: http.MethodGet, path: "/accounts/" + grace.ID, accountID: other.ID}, nil))

	var view models.AccountView
	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/accounts/" + grace.ID, accountID: grace.ID}, &view))
	assert.Equal(t, "grace@example.com", view.Email)

	status := do(t, srv, call{method: http.MethodPatch, path: "/accounts/" + grace.ID, accountID: grace.ID,
		body: map[string]any{"role": "admin"}}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = do(t, srv, call{method: http.MethodPatch, path: "/accounts/" + grace.ID, accountID: grace.ID,
		body: map[string]any{"firstName": "Amazing Grace"}}, &view)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Amazing Grace", view.FirstName)
}

func TestCartAndCheckout(t *testing.T) {
	srv := newTestServer(t)
	grace := register(t, srv, "grace@example.com")

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, call{method: http.MethodGet, path: "/cart"}, nil))

	var c cart.Cart
	status := do(t, srv, call{method: http.MethodPost, path: "/cart/items", accountID: grace.ID,
		body: map[string]any{"productId": "wireless-mouse", "quantity": 2}}, &c)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, c.Count)
	assert.True(t, decimal.RequireFromString("49.00").Equal(c.Total))

	var errResp ErrorResponse
	status = do(t, srv, call{method: http.MethodPost, path: "/cart/items", accountID: grace.ID,
		body: map[string]any{"productId": "ghost", "quantity": 1}}, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "product_not_found", errResp.Error)

	var o models.Order
	status = do(t, srv, call{method: http.MethodPost, path: "/cart/checkout", accountID: grace.ID,
		body: map[string]any{
			"shippingAddress": map[string]string{
				"street": "1 Navy Way", "city": "Arlington", "state": "VA", "postalCode": "22201", "country": "US",
			},
			"paymentMethod": "card",
		}}, &o)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, grace.ID, o.AccountID)

	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/cart", accountID: grace.ID}, &c))
	assert.Empty(t, c.Entries)

	var page struct {
		Items []models.Order `json:"items"`
	}
	assert.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodGet, path: "/orders", accountID: grace.ID}, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, o.ID, page.Items[0].ID)

	assert.Equal(t, http.StatusForbidden, do(t, srv, call{method: http.MethodPut, path: "/orders/" + o.ID + "/status",
		accountID: grace.ID, body: statusRequest{Status: models.OrderStatusShipped}}, nil))

	status = do(t, srv, call{method: http.MethodPost, path: "/orders/" + o.ID + "/cancel", accountID: grace.ID}, &o)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	status = do(t, srv, call{method: http.MethodPut, path: "/orders/" + o.ID + "/status", role: "admin",
		body: statusRequest{Status: models.OrderStatusShipped}}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "invalid_transition", errResp.Error)
}

func TestLoginMergesGuestCart(t *testing.T) {
	srv := newTestServer(t)
	register(t, srv, "grace@example.com")

	body := map[string]any{
		"email": "grace@example.com", "password": "compilers!",
		"guestCart": map[string]any{
			"token":   "guest-1",
			"entries": []map[string]any{{"productId": "usb-c-cable", "quantity": 3}},
		},
	}

	var login loginResponse
	require.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodPost, path: "/sessions", body: body}, &login))
	require.NotNil(t, login.Merge)
	assert.Equal(t, 3, login.Merge.Cart.Count)

	require.Equal(t, http.StatusOK, do(t, srv, call{method: http.MethodPost, path: "/sessions", body: body}, &login))
	assert.Equal(t, 3, login.Merge.Cart.Count)
	assert.Equal(t, cart.MergeSkipped, login.Merge.Results[0].Outcome)
}
