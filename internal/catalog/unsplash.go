package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pixelsync-backend/internal/models"
)

const defaultUnsplashBaseURL = "https://api.unsplash.com"

// Unsplash reads photos from the Unsplash API
type Unsplash struct {
	baseURL   string
	accessKey string
	perPage   int
	client    *http.Client
}

// NewUnsplash creates an Unsplash catalog. An empty baseURL uses the public API.
func NewUnsplash(accessKey, baseURL string, perPage int) *Unsplash {
	if baseURL == "" {
		baseURL = defaultUnsplashBaseURL
	}
	return &Unsplash{
		baseURL:   baseURL,
		accessKey: accessKey,
		perPage:   perPage,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type unsplashPhoto struct {
	ID   string `json:"id"`
	URLs struct {
		Regular string `json:"regular"`
		Small   string `json:"small"`
	} `json:"urls"`
	AltDescription *string `json:"alt_description"`
	User           struct {
		Name         string `json:"name"`
		Username     string `json:"username"`
		ProfileImage struct {
			Small string `json:"small"`
		} `json:"profile_image"`
	} `json:"user"`
}

func (p unsplashPhoto) toModel() models.Photo {
	return models.Photo{
		ID:              p.ID,
		ImageURLRegular: p.URLs.Regular,
		ImageURLSmall:   p.URLs.Small,
		AltDescription:  p.AltDescription,
		Author: models.Author{
			Name:      p.User.Name,
			Username:  p.User.Username,
			AvatarURL: p.User.ProfileImage.Small,
		},
	}
}

// List handles GET /photos
func (u *Unsplash) List(ctx context.Context, params ListParams) (*Page, error) {
	params = params.Normalize(u.perPage)

	query := url.Values{}
	query.Set("page", strconv.Itoa(params.Page))
	query.Set("per_page", strconv.Itoa(params.PerPage))
	query.Set("order_by", params.OrderBy)

	var raw []unsplashPhoto
	if err := u.get(ctx, "/photos?"+query.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	photos := make([]models.Photo, 0, len(raw))
	for _, p := range raw {
		photos = append(photos, p.toModel())
	}
	return &Page{Photos: photos, Page: params.Page, PerPage: params.PerPage}, nil
}

// Get handles GET /photos/{id}
func (u *Unsplash) Get(ctx context.Context, photoID string) (*models.Photo, error) {
	var raw unsplashPhoto
	if err := u.get(ctx, "/photos/"+url.PathEscape(photoID), &raw); err != nil {
		return nil, fmt.Errorf("failed to get photo %s: %w", photoID, err)
	}
	photo := raw.toModel()
	return &photo, nil
}

func (u *Unsplash) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Client-ID "+u.accessKey)
	req.Header.Set("Accept-Version", "v1")

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unsplash returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
