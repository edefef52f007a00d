package domain

import (
	"context"
	"log/slog"
)

// Resolver drives a Geocoder across the fallback candidates of an address
// and stops at the first candidate that yields coordinates.
type Resolver struct {
	geocoder Geocoder
	country  string
	logger   *slog.Logger
}

// NewResolver creates a Resolver that suffixes every query with country.
func NewResolver(geocoder Geocoder, country string, logger *slog.Logger) *Resolver {
	return &Resolver{
		geocoder: geocoder,
		country:  country,
		logger:   logger,
	}
}

// Resolve tries each non-blank candidate in order. It makes between one and
// five geocoder calls; a record with no usable fragments makes none.
func (r *Resolver) Resolve(ctx context.Context, rec AddressRecord) Resolution {
	candidates := BuildFallbackCandidates(
		Normalize(rec.Address),
		Normalize(rec.Suburb),
		Normalize(rec.State),
		Normalize(rec.Postcode),
		r.country,
	)

	for i, q := range candidates {
		if q == "" {
			continue
		}
		res := r.geocoder.Geocode(ctx, q)
		if res.Found() {
			r.logger.Debug("candidate resolved", "id", rec.ID, "fallback", i, "query", q)
			return res
		}
		r.logger.Debug("candidate missed", "id", rec.ID, "fallback", i, "query", q, "error", res.Err)
	}

	return Absent("note", ErrNoResult.Error(), ErrNoResult)
}
