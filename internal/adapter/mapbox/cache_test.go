package mapbox

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-backfill/internal/domain"
	"github.com/couchcryptid/geocode-backfill/internal/observability"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.Resolution
}

func (m *countingGeocoder) Geocode(_ context.Context, _ string) domain.Resolution {
	m.calls++
	return m.result
}

func newCached(t *testing.T, inner domain.Geocoder, size int) *CachedGeocoder {
	t.Helper()
	c, err := NewCachedGeocoder(inner, size, observability.NewMetrics())
	require.NoError(t, err)
	return c
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.Resolution{Coords: &domain.Coordinates{Lat: -33.8688, Lon: 151.2093}},
	}
	cached := newCached(t, inner, 10)

	r1 := cached.Geocode(context.Background(), "Sydney, NSW, Australia")
	r2 := cached.Geocode(context.Background(), "SYDNEY, NSW, Australia")

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(cached.metrics.QueryCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(cached.metrics.QueryCache.WithLabelValues("miss")), 0)
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.Resolution{Coords: &domain.Coordinates{Lat: 1, Lon: 2}},
	}
	cached := newCached(t, inner, 10)

	cached.Geocode(context.Background(), "Sydney, NSW, Australia")
	cached.Geocode(context.Background(), "Perth, WA, Australia")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_AbsentResultsNotCached(t *testing.T) {
	inner := &countingGeocoder{result: domain.Absent("error", "status 500", nil)}
	cached := newCached(t, inner, 10)

	cached.Geocode(context.Background(), "Sydney, NSW, Australia")
	cached.Geocode(context.Background(), "Sydney, NSW, Australia")

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_Eviction(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.Resolution{Coords: &domain.Coordinates{Lat: 1, Lon: 2}},
	}
	cached := newCached(t, inner, 2)

	cached.Geocode(context.Background(), "a")
	cached.Geocode(context.Background(), "b")
	cached.Geocode(context.Background(), "c") // evicts "a"
	cached.Geocode(context.Background(), "a")

	assert.Equal(t, 4, inner.calls)
}

func TestNewCachedGeocoder_InvalidSize(t *testing.T) {
	_, err := NewCachedGeocoder(&countingGeocoder{}, 0, observability.NewMetrics())
	assert.Error(t, err)
}
