package catalog

import (
	"context"
	"time"

	"pixelsync-backend/internal/metrics"
	"pixelsync-backend/internal/models"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// fetchTimeout bounds a shared fetch once it is detached from its first caller
const fetchTimeout = 15 * time.Second

// Cached remembers photos seen through List or Get so deep links into recent
// pages do not hit the provider again. Concurrent Gets for one id share a call.
type Cached struct {
	next  Catalog
	cache *ttlcache.Cache[string, models.Photo]
	group singleflight.Group
}

// NewCached wraps next with a TTL cache
func NewCached(next Catalog, ttl time.Duration, capacity uint64) *Cached {
	cache := ttlcache.New[string, models.Photo](
		ttlcache.WithTTL[string, models.Photo](ttl),
		ttlcache.WithCapacity[string, models.Photo](capacity),
	)
	go cache.Start()

	return &Cached{next: next, cache: cache}
}

// List passes through and caches every returned photo
func (c *Cached) List(ctx context.Context, params ListParams) (*Page, error) {
	page, err := c.next.List(ctx, params)
	if err != nil {
		metrics.CatalogRequests.WithLabelValues("list", "error").Inc()
		return nil, err
	}
	metrics.CatalogRequests.WithLabelValues("list", "ok").Inc()

	for _, photo := range page.Photos {
		c.cache.Set(photo.ID, photo, ttlcache.DefaultTTL)
	}
	return page, nil
}

// Get serves from the cache or fetches once
func (c *Cached) Get(ctx context.Context, photoID string) (*models.Photo, error) {
	if item := c.cache.Get(photoID); item != nil {
		metrics.CatalogRequests.WithLabelValues("get", "cache_hit").Inc()
		photo := item.Value()
		return &photo, nil
	}

	// The shared fetch outlives any one caller; each caller waits on its own ctx.
	ch := c.group.DoChan(photoID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return c.next.Get(fctx, photoID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		metrics.CatalogRequests.WithLabelValues("get", "error").Inc()
		return nil, res.Err
	}
	metrics.CatalogRequests.WithLabelValues("get", "ok").Inc()

	photo := *res.Val.(*models.Photo)
	c.cache.Set(photoID, photo, ttlcache.DefaultTTL)
	return &photo, nil
}

// Stop halts the cache janitor
func (c *Cached) Stop() {
	c.cache.Stop()
}
