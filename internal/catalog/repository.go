// Package catalog is the read-mostly product surface: lookups, filtered and
// paginated listing, text search, the category index and thin admin writes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/models"
	"github.com/safar/storefront-core/internal/storage"
)

type Repository struct {
	backend         storage.Backend
	logger          *slog.Logger
	defaultCurrency string
}

func NewRepository(backend storage.Backend, defaultCurrency string, logger *slog.Logger) *Repository {
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Repository{
		backend:         backend,
		logger:          logger.With("component", "catalog"),
		defaultCurrency: defaultCurrency,
	}
}

// Find returns one page of products. An unset page or limit means page 1 of
// 10; an unset sort means newest first.
func (r *Repository) Find(ctx context.Context, filter storage.ProductFilter, p storage.Pagination, sort storage.Sort) (*storage.Page[models.Product], error) {
	if p.Page < 1 {
		p.Page = storage.DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = storage.DefaultLimit
	}
	if sort.Field == "" {
		sort = storage.DefaultSort
	}

	page, err := r.backend.FindProducts(ctx, storage.ProductQuery{Filter: filter, Sort: sort, Pagination: p})
	if err != nil {
		return nil, r.fail(ctx, "find products", "", err)
	}
	return page, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := r.backend.GetProduct(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, "get product", id, err)
	}
	return product, nil
}

// FindByCategory returns every product in the category, newest first.
func (r *Repository) FindByCategory(ctx context.Context, slug string) ([]models.Product, error) {
	return r.all(ctx, "find by category", storage.ProductFilter{CategorySlug: slug})
}

// Search returns every product whose name, description or tags contain text,
// ignoring case.
func (r *Repository) Search(ctx context.Context, text string) ([]models.Product, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Product{}, nil
	}
	return r.all(ctx, "search products", storage.ProductFilter{Search: text})
}

func (r *Repository) all(ctx context.Context, op string, filter storage.ProductFilter) ([]models.Product, error) {
	page, err := r.backend.FindProducts(ctx, storage.ProductQuery{Filter: filter, Sort: storage.DefaultSort})
	if err != nil {
		return nil, r.fail(ctx, op, "", err)
	}
	return page.Items, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]string, error) {
	categories, err := r.backend.ProductCategories(ctx)
	if err != nil {
		return nil, r.fail(ctx, "list categories", "", err)
	}
	return categories, nil
}

func (r *Repository) validate(p *models.Product) error {
	verr := models.NewValidationError()
	if strings.TrimSpace(p.Name) == "" {
		verr.Add("name", "is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		verr.Add("category", "is required")
	}
	if p.Price.LessThan(decimal.Zero) {
		verr.Add("price", "must not be negative")
	}
	if p.StockQuantity < 0 {
		verr.Add("stockQuantity", "must not be negative")
	}
	if p.ID != "" && models.Slugify(p.ID) != p.ID {
		verr.Add("id", "must be a lowercase slug")
	}
	return verr.OrNil()
}

// Create stores a new product. The id defaults to the slug of the name and
// the category slug is always derived from the category.
func (r *Repository) Create(ctx context.Context, p *models.Product) error {
	if err := r.normalize(p); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = models.Slugify(p.Name)
	}

	now := models.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := r.backend.InsertProduct(ctx, p); err != nil {
		if errors.Is(err, storage.ErrConstraint) {
			return models.NewValidationError(models.FieldError{Field: "id", Message: fmt.Sprintf("product %q already exists", p.ID)})
		}
		return r.fail(ctx, "create product", p.ID, err)
	}

	r.logger.InfoContext(ctx, "product created", "product_id", p.ID)
	return nil
}

// Update writes p if nobody changed the product since p was read.
func (r *Repository) Update(ctx context.Context, p *models.Product) error {
	if err := r.normalize(p); err != nil {
		return err
	}
	p.UpdatedAt = models.Now()

	if err := r.backend.UpdateProduct(ctx, p); err != nil {
		return r.fail(ctx, "update product", p.ID, err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.backend.DeleteProduct(ctx, id); err != nil {
		return r.fail(ctx, "delete product", id, err)
	}
	r.logger.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

func (r *Repository) normalize(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if err := r.validate(p); err != nil {
		return err
	}

	p.CategorySlug = models.Slugify(p.Category)
	if p.Currency == "" {
		p.Currency = r.defaultCurrency
	}
	p.Currency = strings.ToUpper(p.Currency)
	return nil
}

// fail maps a storage error onto the domain taxonomy, logging outages.
func (r *Repository) fail(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, storage.ErrUnavailable) {
		r.logger.ErrorContext(ctx, "storage unavailable", "op", op, "product_id", id, "error", err)
	}
	return storage.Domain(err)
}
