package storage

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page is the pagination envelope shared by every backend.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	TotalPages int   `json:"totalPages"`
}

// Pagination selects a window of results. Limit 0 means "everything".
type Pagination struct {
	Page  int
	Limit int
}

func (p Pagination) normalized() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 0 {
		p.Limit = 0
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Limit == 0 {
		p.Page = 1
	}
	return p
}

// Normalize clamps page and limit to sane values.
func (p Pagination) Normalize() Pagination {
	return p.normalized()
}

// Offset is the number of records to skip.
func (p Pagination) Offset() int {
	p = p.normalized()
	if p.Limit == 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// NewPage wraps one window of items. items is never nil in the result.
func NewPage[T any](items []T, total int64, p Pagination) *Page[T] {
	p = p.normalized()
	if items == nil {
		items = []T{}
	}

	totalPages := 0
	switch {
	case total == 0:
	case p.Limit == 0:
		totalPages = 1
	default:
		totalPages = int(total) / p.Limit
		if int(total)%p.Limit > 0 {
			totalPages++
		}
	}

	return &Page[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		TotalPages: totalPages,
	}
}

// Paginate cuts one window out of a fully materialized, already sorted slice.
func Paginate[T any](all []T, p Pagination) *Page[T] {
	p = p.normalized()
	total := int64(len(all))
	if p.Limit == 0 {
		return NewPage(all, total, p)
	}

	start := p.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + p.Limit
	if end > len(all) {
		end = len(all)
	}
	return NewPage(all[start:end], total, p)
}
