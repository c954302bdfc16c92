package services

import (
	"context"
	"sync"

	"pixelsync-backend/internal/catalog"
	"pixelsync-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Selection is the photo a view currently shows. The zero value means nothing is selected.
type Selection struct {
	PhotoID string
	Photo   *models.Photo
	Loading bool
	Err     error
}

// Resolver turns an externally supplied photo id into a selection, using the
// loaded page when possible and the catalog otherwise. Only the latest Open or
// Clear takes effect; fetches it superseded are dropped when they return.
type Resolver struct {
	catalog catalog.Catalog

	mu       sync.Mutex
	page     map[string]models.Photo
	gen      uint64
	selected Selection
	updates  chan Selection
	closed   bool
}

// NewResolver creates a resolver with an empty page
func NewResolver(c catalog.Catalog) *Resolver {
	return &Resolver{
		catalog: c,
		page:    make(map[string]models.Photo),
		updates: make(chan Selection, 1),
	}
}

// SetPage replaces the photos considered loaded
func (r *Resolver) SetPage(photos []models.Photo) {
	page := make(map[string]models.Photo, len(photos))
	for _, p := range photos {
		page[p.ID] = p
	}

	r.mu.Lock()
	r.page = page
	r.mu.Unlock()
}

// Open selects photoID. A photo on the loaded page is selected at once;
// otherwise a single catalog fetch runs in the background and the returned
// selection is a loading one. An empty id clears the selection.
func (r *Resolver) Open(ctx context.Context, photoID string) Selection {
	if photoID == "" {
		r.Clear()
		return Selection{}
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen

	if photo, ok := r.page[photoID]; ok {
		sel := Selection{PhotoID: photoID, Photo: &photo}
		r.publishLocked(sel)
		r.mu.Unlock()
		return sel
	}

	sel := Selection{PhotoID: photoID, Loading: true}
	r.publishLocked(sel)
	r.mu.Unlock()

	go r.fetch(ctx, gen, photoID)
	return sel
}

// Clear drops the selection and abandons any fetch in flight
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.publishLocked(Selection{})
}

// Selected returns the current selection
func (r *Resolver) Selected() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Updates returns selection changes, latest only
func (r *Resolver) Updates() <-chan Selection {
	return r.updates
}

// Close abandons pending fetches and closes Updates
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.gen++
	r.closed = true
	close(r.updates)
}

func (r *Resolver) fetch(ctx context.Context, gen uint64, photoID string) {
	photo, err := r.catalog.Get(ctx, photoID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		log.Debug().Str("photo_id", photoID).Msg("Dropping superseded photo fetch")
		return
	}

	if err != nil {
		log.Error().Err(err).Str("photo_id", photoID).Msg("Failed to resolve photo")
		r.publishLocked(Selection{PhotoID: photoID, Err: err})
		return
	}
	r.publishLocked(Selection{PhotoID: photoID, Photo: photo})
}

func (r *Resolver) publishLocked(sel Selection) {
	if r.closed {
		return
	}
	r.selected = sel
	select {
	case <-r.updates:
	default:
	}
	r.updates <- sel
}
