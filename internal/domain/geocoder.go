package domain

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotConfigured is reported when the provider credential is missing.
	ErrNotConfigured = errors.New("geocoding provider not configured")

	// ErrNoResult is reported when every fallback candidate came back empty.
	ErrNoResult = errors.New("no result after fallbacks")
)

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Resolution is the outcome of one geocoding attempt. Coords is nil when the
// provider had no usable answer; a half pair is never represented. Raw holds
// the provider payload, or an annotation object describing why it is absent,
// and is what gets persisted alongside the cache entry.
type Resolution struct {
	Coords *Coordinates
	Raw    json.RawMessage
	Err    error
}

// Found reports whether the resolution carries a coordinate pair.
func (r Resolution) Found() bool {
	return r.Coords != nil
}

// Absent builds a resolution without coordinates whose raw payload is a
// single-key annotation object, e.g. {"error": "..."}.
func Absent(key, message string, err error) Resolution {
	raw, _ := json.Marshal(map[string]string{key: message})
	return Resolution{Raw: raw, Err: err}
}

// Geocoder resolves a free-text query to coordinates. Provider failures are
// returned as data in the Resolution, never as a Go error.
type Geocoder interface {
	Geocode(ctx context.Context, query string) Resolution
}
