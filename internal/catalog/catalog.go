package catalog

import (
	"context"
	"errors"

	"pixelsync-backend/internal/models"
)

// ErrNotFound is returned by Get for an unknown photo id
var ErrNotFound = errors.New("photo not found")

// Sort orders accepted by List
const (
	OrderLatest  = "latest"
	OrderOldest  = "oldest"
	OrderPopular = "popular"
)

// ListParams selects one page of the catalog. Page is 1-based.
type ListParams struct {
	Page    int
	PerPage int
	OrderBy string
}

// Page is one page of photos
type Page struct {
	Photos  []models.Photo `json:"photos"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// MaxPerPage is the largest page any provider serves
const MaxPerPage = 30

// Catalog provides photo metadata
type Catalog interface {
	List(ctx context.Context, params ListParams) (*Page, error)
	Get(ctx context.Context, photoID string) (*models.Photo, error)
}

// Normalize clamps paging values the same way for every provider
func (p ListParams) Normalize(defaultPerPage int) ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	switch p.OrderBy {
	case OrderLatest, OrderOldest, OrderPopular:
	default:
		p.OrderBy = OrderPopular
	}
	return p
}
