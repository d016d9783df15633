package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/account"
	"github.com/safar/storefront-core/internal/cart"
	"github.com/safar/storefront-core/internal/gateway"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/order"
	"github.com/safar/storefront-core/internal/storage"
)

const (
	HeaderAccountID   = "X-Account-ID"
	HeaderAccountRole = "X-Account-Role"
)

type actorKey struct{}

// attachActor trusts the identity headers set by the upstream auth layer.
func attachActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.Actor{
			AccountID: r.Header.Get(HeaderAccountID),
			Role:      models.Role(strings.ToLower(r.Header.Get(HeaderAccountRole))),
		}
		if !actor.Role.Valid() {
			actor.Role = models.RoleCustomer
		}
		ctx := context.WithValue(r.Context(), actorKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorKey{}).(models.Actor)
	return actor
}

type Handler struct {
	gw     *gateway.Gateway
	carts  *cart.Service
	orders *order.Service
	logger *slog.Logger
}

func NewHandler(gw *gateway.Gateway, carts *cart.Service, orders *order.Service, logger *slog.Logger) *Handler {
	return &Handler{gw: gw, carts: carts, orders: orders, logger: logger}
}

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(attachActor)

	r.Get("/health", h.Health)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.requireAdmin(h.CreateProduct))
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.requireAdmin(h.UpdateProduct))
		r.Delete("/{id}", h.requireAdmin(h.DeleteProduct))
	})
	r.Get("/categories", h.ListCategories)

	r.Post("/accounts", h.Register)
	r.Post("/sessions", h.Login)
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/", h.GetAccount)
		r.Patch("/", h.UpdateAccount)
		r.Delete("/", h.DeleteAccount)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(requireAccount)
		r.Get("/", h.GetCart)
		r.Delete("/", h.ClearCart)
		r.Post("/items", h.AddCartItem)
		r.Put("/items/{productId}", h.UpdateCartItem)
		r.Delete("/items/{productId}", h.RemoveCartItem)
		r.Post("/merge", h.MergeGuestCart)
		r.Post("/checkout", h.Checkout)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Post("/{id}/cancel", h.CancelOrder)
		r.Put("/{id}/status", h.SetOrderStatus)
	})
	return r
}

func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actorFrom(r).AccountID == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", HeaderAccountID+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r).IsAdmin() {
			writeDomainError(w, models.ErrForbidden)
			return
		}
		next(w, r)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"backend":  h.gw.BackendName(),
		"fallback": h.gw.FellBack(),
	})
}

func pagination(r *http.Request) storage.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return storage.Pagination{Page: page, Limit: limit}
}

func boolParam(r *http.Request, key string) *bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &v
}

func decimalParam(r *http.Request, key string) *decimal.Decimal {
	v, err := decimal.NewFromString(r.URL.Query().Get(key))
	if err != nil {
		return nil
	}
	return &v
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ProductFilter{
		CategorySlug: q.Get("category"),
		Search:       q.Get("q"),
		InStock:      boolParam(r, "inStock"),
		Featured:     boolParam(r, "featured"),
		BestSeller:   boolParam(r, "bestSeller"),
		MinPrice:     decimalParam(r, "minPrice"),
		MaxPrice:     decimalParam(r, "maxPrice"),
	}
	sort := storage.Sort{Field: storage.SortField(q.Get("sort")), Desc: q.Get("order") != "asc"}
	if sort.Field == "" {
		sort = storage.DefaultSort
	}

	page, err := h.gw.FindProducts(r.Context(), filter, pagination(r), sort)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.gw.FindProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.gw.ListCategories(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if !decode(w, r, &product) {
		return
	}
	product.Version = 0
	if err := h.gw.CreateProduct(r.Context(), &product); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProduct expects the full product including the version it was read at.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var product models.Product
	if !decode(w, r, &product) {
		return
	}
	product.ID = chi.URLParam(r, "id")

	existing, err := h.gw.FindProduct(r.Context(), product.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	product.CreatedAt = existing.CreatedAt

	if err := h.gw.UpdateProduct(r.Context(), &product); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.gw.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.gw.CreateAccount(r.Context(), account.Draft{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc.View())
}

type loginRequest struct {
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	GuestCart *cart.GuestCart `json:"guestCart,omitempty"`
}

type loginResponse struct {
	Account models.AccountView `json:"account"`
	Merge   *cart.MergeReport  `json:"merge,omitempty"`
}

// Login verifies credentials and merges a guest cart when one is sent.
// A failed merge never fails the login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	acc, err := h.gw.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := loginResponse{Account: acc.View()}
	if req.GuestCart != nil && len(req.GuestCart.Entries) > 0 {
		report, err := h.carts.MergeGuestCart(r.Context(), acc.ID, *req.GuestCart)
		if err != nil {
			h.logger.WarnContext(r.Context(), "guest cart merge incomplete", "account_id", acc.ID, "error", err)
		}
		resp.Merge = report
	}
	writeJSON(w, http.StatusOK, resp)
}

func canManage(actor models.Actor, accountID string) bool {
	return actor.IsAdmin() || (actor.AccountID != "" && actor.AccountID == accountID)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canManage(actorFrom(r), id) {
		writeDomainError(w, models.ErrForbidden)
		return
	}

	acc, err := h.gw.FindAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc.View())
}

type updateAccountRequest struct {
	FirstName *string      `json:"firstName"`
	LastName  *string      `json:"lastName"`
	Email     *string      `json:"email"`
	Password  *string      `json:"password"`
	Role      *models.Role `json:"role"`
	Active    *bool        `json:"active"`
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := actorFrom(r)
	if !canManage(actor, id) {
		writeDomainError(w, models.ErrForbidden)
		return
	}

	var req updateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	if (req.Role != nil || req.Active != nil) && !actor.IsAdmin() {
		writeDomainError(w, models.ErrForbidden)
		return
	}

	acc, err := h.gw.UpdateAccount(r.Context(), id, account.Patch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		Active:    req.Active,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc.View())
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !canManage(actorFrom(r), id) {
		writeDomainError(w, models.ErrForbidden)
		return
	}

	acc, err := h.gw.DeleteAccount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc.View())
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), actorFrom(r).AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type cartItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price"`
	Image     string           `json:"image"`
	Currency  string           `json:"currency"`
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decode(w, r, &req) {
		return
	}

	hint := &cart.SnapshotHint{Name: req.Name, Price: req.Price, Image: req.Image, Currency: req.Currency}
	c, err := h.carts.AddItem(r.Context(), actorFrom(r).AccountID, req.ProductID, req.Quantity, hint)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &req) {
		return
	}

	c, err := h.carts.UpdateQuantity(r.Context(), actorFrom(r).AccountID, chi.URLParam(r, "productId"), req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(r.Context(), actorFrom(r).AccountID, chi.URLParam(r, "productId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Clear(r.Context(), actorFrom(r).AccountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) MergeGuestCart(w http.ResponseWriter, r *http.Request) {
	var guest cart.GuestCart
	if !decode(w, r, &guest) {
		return
	}

	report, err := h.carts.MergeGuestCart(r.Context(), actorFrom(r).AccountID, guest)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var details order.CheckoutDetails
	if !decode(w, r, &details) {
		return
	}

	o, err := h.orders.Checkout(r.Context(), actorFrom(r), details)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// CreateOrder accepts a full draft. Customers order for themselves; only
// unauthenticated callers may place guest orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var d order.Draft
	if !decode(w, r, &d) {
		return
	}
	actor := actorFrom(r)
	if !actor.IsAdmin() {
		d.AccountID = actor.AccountID
	}

	o, err := h.orders.Create(r.Context(), d)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := storage.OrderFilter{
		AccountID: r.URL.Query().Get("accountId"),
		Status:    models.OrderStatus(r.URL.Query().Get("status")),
	}

	page, err := h.orders.List(r.Context(), actorFrom(r), filter, pagination(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status models.OrderStatus `json:"status"`
	Note   string             `json:"note"`
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}

	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.orders.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, actorFrom(r), req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
