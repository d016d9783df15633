// Package gateway is the single entry point to persistence. Init picks one
// backend at startup and that choice holds for the life of the process;
// everything above this package sees the same methods whichever backend
// answers them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/storefront-core/internal/account"
	"github.com/safar/storefront-core/internal/catalog"
	"github.com/safar/storefront-core/internal/config"
	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
	"github.com/safar/storefront-core/internal/storage/flatfile"
	"github.com/safar/storefront-core/internal/storage/mongo"
	"github.com/safar/storefront-core/internal/storage/postgres"
)

type Gateway struct {
	backend  storage.Backend
	fellBack bool
	logger   *slog.Logger

	catalog  *catalog.Repository
	accounts *account.Repository
}

// Init connects to the configured document store and falls back to the
// flat-file store when it cannot be reached. It blocks until a backend is
// ready; it fails only if the flat-file store cannot be opened either.
func Init(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	var (
		backend  storage.Backend
		fellBack bool
		err      error
	)

	if cfg.Storage.Driver != config.DriverFlatFile {
		backend, err = openPrimary(ctx, cfg, logger)
		if err != nil {
			logger.WarnContext(ctx, "document store unavailable, falling back to flat-file storage",
				"driver", cfg.Storage.Driver, "dir", cfg.FlatFile.Dir, "error", err)
			fellBack = true
		}
	}

	if backend == nil {
		if backend, err = openFlatFile(cfg.FlatFile.Dir); err != nil {
			return nil, fmt.Errorf("open flat-file storage: %w", err)
		}
	}

	logger.InfoContext(ctx, "storage backend selected", "backend", backend.Name(), "fallback", fellBack)

	g := New(backend, cfg, logger)
	g.fellBack = fellBack
	return g, nil
}

func openPrimary(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Backend, error) {
	timeout := cfg.Storage.ConnectTimeout
	switch cfg.Storage.Driver {
	case config.DriverMongo:
		store, err := mongo.Open(ctx, &cfg.Mongo, timeout, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, &cfg.Database, timeout, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func openFlatFile(dir string) (storage.Backend, error) {
	store, err := flatfile.Open(dir)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// New wraps an already opened backend.
func New(backend storage.Backend, cfg *config.Config, logger *slog.Logger) *Gateway {
	return &Gateway{
		backend:  backend,
		logger:   logger,
		catalog:  catalog.NewRepository(backend, cfg.Orders.DefaultCurrency, logger),
		accounts: account.NewRepository(backend, cfg.Security, logger),
	}
}

// BackendName reports which backend answers requests.
func (g *Gateway) BackendName() string {
	return g.backend.Name()
}

// FellBack reports whether the configured document store was unreachable at
// startup.
func (g *Gateway) FellBack() bool {
	return g.fellBack
}

func (g *Gateway) Catalog() *catalog.Repository {
	return g.catalog
}

func (g *Gateway) Accounts() *account.Repository {
	return g.accounts
}

func (g *Gateway) Close(ctx context.Context) error {
	return g.backend.Close(ctx)
}

// Catalog

func (g *Gateway) FindProducts(ctx context.Context, filter storage.ProductFilter, p storage.Pagination, sort storage.Sort) (*storage.Page[models.Product], error) {
	return g.catalog.Find(ctx, filter, p, sort)
}

func (g *Gateway) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	return g.catalog.FindByID(ctx, id)
}

func (g *Gateway) FindProductsByCategory(ctx context.Context, slug string) ([]models.Product, error) {
	return g.catalog.FindByCategory(ctx, slug)
}

func (g *Gateway) SearchProducts(ctx context.Context, text string) ([]models.Product, error) {
	return g.catalog.Search(ctx, text)
}

func (g *Gateway) ListCategories(ctx context.Context) ([]string, error) {
	return g.catalog.ListCategories(ctx)
}

func (g *Gateway) CreateProduct(ctx context.Context, p *models.Product) error {
	return g.catalog.Create(ctx, p)
}

func (g *Gateway) UpdateProduct(ctx context.Context, p *models.Product) error {
	return g.catalog.Update(ctx, p)
}

func (g *Gateway) DeleteProduct(ctx context.Context, id string) error {
	return g.catalog.Delete(ctx, id)
}

// Accounts

func (g *Gateway) FindAccount(ctx context.Context, id string) (*models.Account, error) {
	return g.accounts.FindByID(ctx, id)
}

func (g *Gateway) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return g.accounts.FindByEmail(ctx, email)
}

func (g *Gateway) CreateAccount(ctx context.Context, d account.Draft) (*models.Account, error) {
	return g.accounts.Create(ctx, d)
}

func (g *Gateway) UpdateAccount(ctx context.Context, id string, patch account.Patch) (*models.Account, error) {
	return g.accounts.Update(ctx, id, patch)
}

func (g *Gateway) DeleteAccount(ctx context.Context, id string) (*models.Account, error) {
	return g.accounts.Delete(ctx, id)
}

func (g *Gateway) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	return g.accounts.Authenticate(ctx, email, password)
}

// SaveAccount is the version-checked write primitive behind cart mutations.
func (g *Gateway) SaveAccount(ctx context.Context, a *models.Account) error {
	return g.accounts.Save(ctx, a)
}

// Orders

func (g *Gateway) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := g.backend.GetOrder(ctx, id)
	if err != nil {
		return nil, g.fail(ctx, "get order", id, err)
	}
	return order, nil
}

func (g *Gateway) FindOrders(ctx context.Context, filter storage.OrderFilter, p storage.Pagination) (*storage.Page[models.Order], error) {
	page, err := g.backend.FindOrders(ctx, storage.OrderQuery{Filter: filter, Pagination: p})
	if err != nil {
		return nil, g.fail(ctx, "find orders", "", err)
	}
	return page, nil
}

// InsertOrder persists a complete order in a single write.
func (g *Gateway) InsertOrder(ctx context.Context, o *models.Order) error {
	if err := g.backend.InsertOrder(ctx, o); err != nil {
		return g.fail(ctx, "insert order", o.ID, err)
	}
	return nil
}

// SaveOrder writes o back if its version is still current.
func (g *Gateway) SaveOrder(ctx context.Context, o *models.Order) error {
	if err := g.backend.UpdateOrder(ctx, o); err != nil {
		return g.fail(ctx, "save order", o.ID, err)
	}
	return nil
}

func (g *Gateway) fail(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		g.logger.ErrorContext(ctx, "storage unavailable", "op", op, "order_id", id, "backend", g.backend.Name(), "error", err)
	}
	return storage.Domain(err)
}
