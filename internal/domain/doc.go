// Package domain models the geocode backfill: address rows that lack
// coordinates, the queries built from their fragments, and the fingerprint
// cache that keeps paid provider calls to genuine misses.
//
// # Address Data Conventions
//
// Rows carry four free-text fragments: address, suburb, state and postcode.
// Any of them may be NULL, blank, or (for postcode) numeric in the source
// table. [Normalize] folds all of these into a trimmed string where "" means
// absent. Zero is a real value: a postcode of 0 normalizes to "0".
//
// # Query Construction
//
// Queries are comma-joined fragments followed by a fixed country literal:
//
//	"123 Main St, Sydney, NSW, 2000, Australia"
//
// When the full address fails, progressively looser queries are tried in a
// fixed order (see [BuildFallbackCandidates]), ending at the bare state.
//
// # Fingerprint Cache
//
// Each row carries an address_key computed by the store. The key, not the
// query text, identifies a cache entry. Entries come in three states:
//
//	absent      never attempted, resolve it
//	positive    (lat, lon) known, copy it onto the row
//	negative    attempted and failed, skip it forever
//
// Negative entries are terminal: no later run queries them again.
//
// # Coordinate Order
//
// Mapbox returns feature centers as [lon, lat]. Everything in this package
// is latitude first.
package domain
