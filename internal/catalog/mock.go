package catalog

import (
	"context"
	"fmt"

	"pixelsync-backend/internal/models"
)

// Mock serves deterministic placeholder photos for development without a catalog key
type Mock struct {
	perPage int
}

// NewMock creates a mock catalog
func NewMock(perPage int) *Mock {
	if perPage <= 0 {
		perPage = 12
	}
	return &Mock{perPage: perPage}
}

// List returns PerPage generated photos for the page
func (m *Mock) List(ctx context.Context, params ListParams) (*Page, error) {
	params = params.Normalize(m.perPage)

	photos := make([]models.Photo, 0, params.PerPage)
	for i := 0; i < params.PerPage; i++ {
		photos = append(photos, mockPhoto(params.Page, i))
	}
	return &Page{Photos: photos, Page: params.Page, PerPage: params.PerPage}, nil
}

// Get resolves ids of the form mock-<page>-<index> that some List call could return
func (m *Mock) Get(ctx context.Context, photoID string) (*models.Photo, error) {
	var page, index int
	if _, err := fmt.Sscanf(photoID, "mock-%d-%d", &page, &index); err != nil || page < 1 || index < 0 || index >= MaxPerPage {
		return nil, fmt.Errorf("%s: %w", photoID, ErrNotFound)
	}
	if photoID != fmt.Sprintf("mock-%d-%d", page, index) {
		return nil, fmt.Errorf("%s: %w", photoID, ErrNotFound)
	}
	photo := mockPhoto(page, index)
	return &photo, nil
}

func mockPhoto(page, index int) models.Photo {
	seed := page*100 + index
	alt := "Mock image"
	return models.Photo{
		ID:              fmt.Sprintf("mock-%d-%d", page, index),
		ImageURLRegular: fmt.Sprintf("https://picsum.photos/seed/%d/800/600", seed),
		ImageURLSmall:   fmt.Sprintf("https://picsum.photos/seed/%d/400/300", seed),
		AltDescription:  &alt,
		Author: models.Author{
			Name:      "Mock User",
			Username:  "mockuser",
			AvatarURL: "https://github.com/shadcn.png",
		},
	}
}
