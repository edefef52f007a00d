package mapbox

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU keyed by query text.
// It lives for one run and catches repeated fallback queries, such as the
// same suburb or state, shared by rows with different fingerprints.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.Resolution]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) (*CachedGeocoder, error) {
	cache, err := lru.New[string, domain.Resolution](maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}, nil
}

func (c *CachedGeocoder) Geocode(ctx context.Context, query string) domain.Resolution {
	key := strings.ToLower(query)
	if res, ok := c.cache.Get(key); ok {
		c.metrics.QueryCache.WithLabelValues("hit").Inc()
		return res
	}
	c.metrics.QueryCache.WithLabelValues("miss").Inc()

	res := c.inner.Geocode(ctx, query)
	// Only cache found results so empty and failed queries can be retried.
	if res.Found() {
		c.cache.Add(key, res)
	}
	return res
}
