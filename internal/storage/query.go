package storage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/safar/storefront-core/internal/models"
)

type SortField string

const (
	SortByCreated SortField = "createdAt"
	SortByPrice   SortField = "price"
	SortByName    SortField = "name"
)

// Sort orders results. Ties always break on id in the same direction, so
// every backend yields the same sequence.
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort is creation order, newest first.
var DefaultSort = Sort{Field: SortByCreated, Desc: true}

func (s Sort) Normalize() Sort {
	switch s.Field {
	case SortByCreated, SortByPrice, SortByName:
		return s
	}
	return DefaultSort
}

type ProductFilter struct {
	CategorySlug string
	// Search is a case-insensitive substring matched against name,
	// description and tags.
	Search     string
	InStock    *bool
	Featured   *bool
	BestSeller *bool
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
}

type ProductQuery struct {
	Filter     ProductFilter
	Sort       Sort
	Pagination Pagination
}

func (f ProductFilter) Matches(p *models.Product) bool {
	if f.CategorySlug != "" && p.CategorySlug != f.CategorySlug {
		return false
	}
	if f.InStock != nil && p.InStock != *f.InStock {
		return false
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	if f.BestSeller != nil && p.BestSeller != *f.BestSeller {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" && !matchesText(p, f.Search) {
		return false
	}
	return true
}

func matchesText(p *models.Product, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(p.Name), needle) ||
		strings.Contains(strings.ToLower(p.Description), needle) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// SortProducts orders products in place the way the database backends do.
func SortProducts(products []models.Product, s Sort) {
	s = s.Normalize()
	sort.SliceStable(products, func(i, j int) bool {
		a, b := &products[i], &products[j]
		var cmp int
		switch s.Field {
		case SortByPrice:
			cmp = a.Price.Cmp(b.Price)
		case SortByName:
			cmp = strings.Compare(a.Name, b.Name)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID, b.ID)
		}
		if s.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

type OrderFilter struct {
	AccountID string
	Status    models.OrderStatus
}

type OrderQuery struct {
	Filter     OrderFilter
	Pagination Pagination
}

func (f OrderFilter) Matches(o *models.Order) bool {
	if f.AccountID != "" && o.AccountID != f.AccountID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}

// SortOrders orders newest first, ties broken by id descending.
func SortOrders(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if c := orders[i].CreatedAt.Compare(orders[j].CreatedAt); c != 0 {
			return c > 0
		}
		return orders[i].ID > orders[j].ID
	})
}
